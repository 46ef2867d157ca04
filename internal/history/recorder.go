package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"

	"pipeflow/internal/logging"
)

// Run lifecycle events.
const (
	EventStarted   = hookz.Key("run.started")
	EventSucceeded = hookz.Key("run.succeeded")
	EventFailed    = hookz.Key("run.failed")
)

// Event carries a snapshot of the run that changed.
type Event struct {
	Run Run
}

// Recorder opens run records in a Store and emits lifecycle events. Hook
// handlers run asynchronously.
type Recorder struct {
	store Store
	clock clockz.Clock
	hooks *hookz.Hooks[Event]
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store: store,
		clock: clockz.RealClock,
		hooks: hookz.New[Event](
			hookz.WithQueueSize(1024),
			hookz.WithBackpressure(hookz.BackpressureConfig{
				MaxWait:        250 * time.Millisecond,
				StartThreshold: 0.8,
				Strategy:       "linear",
			}),
		),
	}
}

func (r *Recorder) emit(ctx context.Context, key hookz.Key, run Run) {
	if err := r.hooks.Emit(ctx, key, Event{Run: run}); err != nil {
		logging.L().Warn("run event dropped", "event", key, "run_id", run.ID, "err", err)
	}
}

func (r *Recorder) WithClock(clock clockz.Clock) *Recorder {
	r.clock = clock
	return r
}

func (r *Recorder) Store() Store { return r.store }

// Start saves a running record for process.
func (r *Recorder) Start(ctx context.Context, process string) (*Entry, error) {
	e := &Entry{
		rec: r,
		run: Run{
			ID:        uuid.NewString(),
			Process:   process,
			StartedAt: r.clock.Now().UTC(),
			Status:    StatusRunning,
		},
	}
	if err := r.store.Save(e.run); err != nil {
		return nil, err
	}
	r.emit(ctx, EventStarted, e.run)
	return e, nil
}

func (r *Recorder) OnStarted(handler func(context.Context, Event) error) error {
	_, err := r.hooks.Hook(EventStarted, handler)
	return err
}

func (r *Recorder) OnSucceeded(handler func(context.Context, Event) error) error {
	_, err := r.hooks.Hook(EventSucceeded, handler)
	return err
}

func (r *Recorder) OnFailed(handler func(context.Context, Event) error) error {
	_, err := r.hooks.Hook(EventFailed, handler)
	return err
}

// Close waits for queued handlers to finish.
func (r *Recorder) Close() {
	_ = r.hooks.Close()
}

// Entry is the open record of one run. The first SetSuccess or SetFailed
// call closes it; later calls are ignored.
type Entry struct {
	rec *Recorder

	mu      sync.Mutex
	run     Run
	saveErr error
}

func (e *Entry) ID() string { return e.run.ID }

func (e *Entry) Run() Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Err returns the error of the last store write, if any.
func (e *Entry) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveErr
}

func (e *Entry) SetSuccess() {
	e.finish(StatusSuccess, nil)
}

func (e *Entry) SetFailed(err error) {
	e.finish(StatusFailed, err)
}

func (e *Entry) finish(status Status, cause error) {
	e.mu.Lock()
	if e.run.Finished() {
		e.mu.Unlock()
		return
	}
	e.run.Status = status
	e.run.EndedAt = e.rec.clock.Now().UTC()
	if cause != nil {
		e.run.Error = cause.Error()
	}
	snapshot := e.run
	e.saveErr = e.rec.store.Save(snapshot)
	if e.saveErr != nil {
		logging.L().Error("history write failed", "run_id", snapshot.ID, "err", e.saveErr)
	}
	e.mu.Unlock()

	key := EventSucceeded
	if status == StatusFailed {
		key = EventFailed
	}
	e.rec.emit(context.Background(), key, snapshot)
}

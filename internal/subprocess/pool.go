// Package subprocess runs records through child processes with a bounded
// number of children alive at once.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/zoobzio/clockz"

	"pipeflow/internal/logging"
	"pipeflow/internal/telemetry"
)

// CommandFunc builds the child process handling one record of the
// sub-process code.
type CommandFunc func(ctx context.Context, code string) (*exec.Cmd, error)

// SelfCommand re-invokes executable as "<args...> execute <code>
// --input-from-stdin".
func SelfCommand(executable string, args ...string) CommandFunc {
	return func(ctx context.Context, code string) (*exec.Cmd, error) {
		argv := append(append([]string(nil), args...), "execute", code, "--input-from-stdin")
		return exec.CommandContext(ctx, executable, argv...), nil
	}
}

// ExitError reports a child that exited unsuccessfully.
type ExitError struct {
	Code     string
	PID      int
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("subprocess %q (pid %d) exited with code %d", e.Code, e.PID, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

type child struct {
	code   string
	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *child) exitError() *ExitError {
	if c.err == nil {
		return nil
	}
	e := &ExitError{Code: c.code, PID: c.cmd.Process.Pid, ExitCode: -1, Stderr: c.stderr.String(), Err: c.err}
	var ee *exec.ExitError
	if errors.As(c.err, &ee) {
		e.ExitCode = ee.ExitCode()
	}
	return e
}

// Pool is driven from a single goroutine; only child exits are observed
// concurrently.
type Pool struct {
	cfg     Config
	command CommandFunc
	clock   clockz.Clock
	metrics *telemetry.Metrics
	logger  *slog.Logger

	running  []*child
	launched int
}

func NewPool(cfg Config, command CommandFunc) *Pool {
	return &Pool{cfg: cfg.Normalize(), command: command}
}

func (p *Pool) WithClock(clock clockz.Clock) *Pool {
	p.clock = clock
	return p
}

func (p *Pool) WithMetrics(m *telemetry.Metrics) *Pool {
	p.metrics = m
	return p
}

func (p *Pool) WithLogger(l *slog.Logger) *Pool {
	p.logger = l
	return p
}

func (p *Pool) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

func (p *Pool) getLogger() *slog.Logger {
	if p.logger == nil {
		return logging.L()
	}
	return p.logger
}

func (p *Pool) Config() Config { return p.cfg }

// Running returns the number of children not yet reaped.
func (p *Pool) Running() int { return len(p.running) }

// Launched returns the number of children started so far.
func (p *Pool) Launched() int { return p.launched }

func (p *Pool) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.getClock().After(d):
		return nil
	}
}

// Launch starts one child for record once a slot is free. Finished children
// are reaped first; a failed child makes Launch terminate every other child
// and return its *ExitError.
func (p *Pool) Launch(ctx context.Context, code string, record []byte) error {
	if err := p.Reap(); err != nil {
		return err
	}
	for len(p.running) >= p.cfg.MaxProcesses {
		if err := p.sleep(ctx, p.cfg.SleepInterval); err != nil {
			p.KillAll()
			return err
		}
		if err := p.Reap(); err != nil {
			return err
		}
	}

	cmd, err := p.command(ctx, code)
	if err != nil {
		return fmt.Errorf("subprocess %q: %w", code, err)
	}
	c := &child{code: code, cmd: cmd, done: make(chan struct{})}
	cmd.Stdin = bytes.NewReader(record)
	cmd.Stderr = &c.stderr
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subprocess %q: start: %w", code, err)
	}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	p.running = append(p.running, c)
	p.launched++
	p.metrics.SubprocessStarted()
	p.getLogger().Debug("subprocess started", "code", code, "pid", cmd.Process.Pid, "running", len(p.running))

	if p.cfg.SleepIntervalAfterLaunch > 0 {
		return p.sleep(ctx, p.cfg.SleepIntervalAfterLaunch)
	}
	return nil
}

// Reap removes finished children. On the first failure every other child is
// terminated and the failure is returned.
func (p *Pool) Reap() error {
	var failed *ExitError
	alive := p.running[:0]
	for _, c := range p.running {
		if !c.exited() {
			alive = append(alive, c)
			continue
		}
		if e := c.exitError(); e != nil {
			p.metrics.SubprocessExited("failed")
			if failed == nil {
				failed = e
			}
			continue
		}
		p.metrics.SubprocessExited("ok")
	}
	p.running = alive
	if failed != nil {
		p.getLogger().Error("subprocess failed, terminating siblings", "code", failed.Code, "pid", failed.PID, "exit_code", failed.ExitCode, "running", len(p.running))
		p.KillAll()
		return failed
	}
	return nil
}

// KillAll sends SIGTERM to every running child's process group and SIGKILL
// to those still alive after the grace period. It returns once all of them
// have exited.
func (p *Pool) KillAll() {
	if len(p.running) == 0 {
		return
	}
	for _, c := range p.running {
		signalGroup(c.cmd, syscall.SIGTERM)
	}
	deadline := p.getClock().After(p.cfg.KillGracePeriod)
	for _, c := range p.running {
		select {
		case <-c.done:
			continue
		case <-deadline:
		}
		// deadline fired: kill this child and every later one still alive
		for _, rest := range p.running {
			if !rest.exited() {
				signalGroup(rest.cmd, syscall.SIGKILL)
			}
		}
		break
	}
	for _, c := range p.running {
		<-c.done
		p.metrics.SubprocessExited("killed")
	}
	p.running = nil
}

// Drain waits for every child, polling every SleepOnFinalizeInterval.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		if err := p.Reap(); err != nil {
			return err
		}
		if len(p.running) == 0 {
			return nil
		}
		if err := p.sleep(ctx, p.cfg.SleepOnFinalizeInterval); err != nil {
			p.KillAll()
			return err
		}
	}
}

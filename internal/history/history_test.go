package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

func at(day int) time.Time {
	return time.Date(2024, time.March, day, 12, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, s Store) {
	t.Helper()
	for _, r := range []Run{
		{ID: "c", Process: "import", StartedAt: at(3), EndedAt: at(3).Add(time.Minute), Status: StatusFailed, Error: "boom"},
		{ID: "a", Process: "import", StartedAt: at(1), EndedAt: at(1).Add(time.Minute), Status: StatusSuccess},
		{ID: "b", Process: "export", StartedAt: at(2), EndedAt: at(2).Add(time.Minute), Status: StatusSuccess},
		{ID: "d", Process: "export", StartedAt: at(4), Status: StatusRunning},
	} {
		require.NoError(t, s.Save(r))
	}
}

func ids(t *testing.T, s Store) []string {
	t.Helper()
	runs, err := s.List()
	require.NoError(t, err)
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"dir":    NewDirStore(filepath.Join(t.TempDir(), "var", "history")),
	}
}

func TestStore_ListOrdersByStart(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, s))

			require.NoError(t, s.Save(Run{ID: "d", Process: "export", StartedAt: at(4), EndedAt: at(5), Status: StatusSuccess}))
			runs, err := s.List()
			require.NoError(t, err)
			require.Len(t, runs, 4)
			assert.Equal(t, StatusSuccess, runs[3].Status)
			assert.Equal(t, 24*time.Hour, runs[3].Duration())
		})
	}
}

func TestStore_Purge(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		removed int
		left    []string
	}{
		{"no filter keeps running runs", nil, 3, []string{"d"}},
		{"status", []string{"status:=:failed"}, 1, []string{"a", "b", "d"}},
		{"not equal", []string{"process:!=:import"}, 2, []string{"a", "c"}},
		{"before date", []string{"started_at:<:2024-03-03"}, 2, []string{"c", "d"}},
		{"at or after", []string{"started_at:>=:2024-03-03T12:00:00Z"}, 2, []string{"a", "b"}},
		{"filters are ANDed", []string{"process:=:import", "status:=:success"}, 1, []string{"b", "c", "d"}},
		{"nothing matches", []string{"id:=:zzz"}, 0, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		for name, s := range stores(t) {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				seed(t, s)
				var filters []Filter
				for _, expr := range tt.filters {
					f, err := ParseFilter(expr)
					require.NoError(t, err)
					filters = append(filters, f)
				}
				n, err := s.Purge(filters...)
				require.NoError(t, err)
				assert.Equal(t, tt.removed, n)
				assert.Equal(t, tt.left, ids(t, s))
			})
		}
	}
}

func TestDirStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	seed(t, NewDirStore(dir))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, NewDirStore(dir)))

	runs, err := NewDirStore(dir).List()
	require.NoError(t, err)
	assert.Equal(t, "boom", runs[2].Error)
	assert.True(t, runs[0].StartedAt.Equal(at(1)))
}

func TestDirStore_MissingDirIsEmpty(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "none"))
	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
	n, err := s.Purge()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDirStore_ConcurrentWriters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	const writers, perWriter = 4, 25

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// A store per writer, as each subprocess child opens its own.
			s := NewDirStore(dir)
			for i := 0; i < perWriter; i++ {
				r := Run{ID: fmt.Sprintf("w%d-%02d", w, i), Process: "import", StartedAt: at(1), Status: StatusRunning}
				errs <- s.Save(r)
				r.Status, r.EndedAt = StatusSuccess, at(2)
				errs <- s.Save(r)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	runs, err := NewDirStore(dir).List()
	require.NoError(t, err)
	require.Len(t, runs, writers*perWriter)
	for _, r := range runs {
		assert.Equal(t, StatusSuccess, r.Status, r.ID)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, writers*perWriter, "no temp files left behind")
}

func TestDirStore_RejectsPathLikeIDs(t *testing.T) {
	s := NewDirStore(t.TempDir())
	assert.Error(t, s.Save(Run{ID: "../escape", StartedAt: at(1)}))
	assert.Error(t, s.Save(Run{StartedAt: at(1)}))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("ended_at:<=:2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, Filter{Field: "ended_at", Op: "<=", Value: "2024-03-01T10:00:00Z"}, f)
	assert.Equal(t, "ended_at:<=:2024-03-01T10:00:00Z", f.String())

	for _, expr := range []string{"status", "status:=", "colour:=:red", "status:~:x", "started_at:<:yesterday"} {
		_, err := ParseFilter(expr)
		require.ErrorIs(t, err, ErrInvalidFilter, expr)
	}
}

func TestRecorder_Lifecycle(t *testing.T) {
	clock := clockz.NewFakeClock()
	store := NewMemoryStore()
	rec := NewRecorder(store).WithClock(clock)
	defer rec.Close()

	var mu sync.Mutex
	var events []string
	track := func(name string) func(context.Context, Event) error {
		return func(_ context.Context, e Event) error {
			mu.Lock()
			events = append(events, name+":"+string(e.Run.Status))
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, rec.OnStarted(track("started")))
	require.NoError(t, rec.OnSucceeded(track("succeeded")))
	require.NoError(t, rec.OnFailed(track("failed")))

	ok, err := rec.Start(context.Background(), "import")
	require.NoError(t, err)
	assert.NotEmpty(t, ok.ID())
	assert.Equal(t, StatusRunning, ok.Run().Status)

	clock.Advance(time.Second)
	ok.SetSuccess()
	ok.SetFailed(errors.New("late"))
	assert.Equal(t, StatusSuccess, ok.Run().Status)
	assert.Equal(t, time.Second, ok.Run().Duration())
	assert.Empty(t, ok.Run().Error)

	bad, err := rec.Start(context.Background(), "import")
	require.NoError(t, err)
	assert.NotEqual(t, ok.ID(), bad.ID())
	bad.SetFailed(errors.New("boom"))
	require.NoError(t, bad.Err())

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	byID := map[string]Run{runs[0].ID: runs[0], runs[1].ID: runs[1]}
	assert.Equal(t, StatusSuccess, byID[ok.ID()].Status)
	assert.Equal(t, StatusFailed, byID[bad.ID()].Status)
	assert.Equal(t, "boom", byID[bad.ID()].Error)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{"started:running", "started:running", "succeeded:success", "failed:failed"}, events)
	mu.Unlock()
}

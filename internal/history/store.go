package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists run records.
type Store interface {
	// Save inserts run or replaces the record with the same ID.
	Save(run Run) error
	// List returns every record, oldest first.
	List() ([]Run, error)
	// Purge deletes the records matching every filter and returns how many
	// were removed. No filter matches every finished run.
	Purge(filters ...Filter) (int, error)
}

/* ───────────────────────────── memory ────────────────────────────── */

type MemoryStore struct {
	mu   sync.Mutex
	runs []Run
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = upsert(s.runs, run)
	return nil
}

func (s *MemoryStore) List() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.runs), nil
}

func (s *MemoryStore) Purge(filters ...Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept, n, err := purge(s.runs, filters)
	if err != nil {
		return 0, err
	}
	s.runs = kept
	return n, nil
}

/* ───────────────────────────── yaml dir ──────────────────────────── */

// DirStore keeps one YAML file per run under dir, named after the run ID.
// Writers in other processes touch other files, so subprocess children can
// share the directory with their parent.
type DirStore struct {
	dir string
	mu  sync.Mutex
}

const runExt = ".yml"

func NewDirStore(dir string) *DirStore { return &DirStore{dir: dir} }

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) Save(run Run) error {
	if run.ID == "" || strings.ContainsAny(run.ID, `/\`) {
		return fmt.Errorf("history: invalid run id %q", run.ID)
	}
	raw, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(filepath.Join(s.dir, run.ID+runExt), raw); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

func (s *DirStore) List() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	return sorted(runs), nil
}

func (s *DirStore) Purge(filters ...Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.load()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range runs {
		ok, err := matchAll(r, filters)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		err = os.Remove(filepath.Join(s.dir, r.ID+runExt))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("history: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (s *DirStore) load() ([]Run, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	runs := make([]Run, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runExt) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue // purged by another process
		}
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		var r Run
		if err := yaml.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("history: parse %s: %w", path, err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// writeAtomic writes through a unique temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(name)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(name, path); err != nil {
		return err
	}
	committed = true
	return nil
}

/* ───────────────────────────── helpers ───────────────────────────── */

func upsert(runs []Run, run Run) []Run {
	for i := range runs {
		if runs[i].ID == run.ID {
			runs[i] = run
			return runs
		}
	}
	return append(runs, run)
}

func sorted(runs []Run) []Run {
	out := append([]Run(nil), runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func purge(runs []Run, filters []Filter) ([]Run, int, error) {
	kept := runs[:0:0]
	removed := 0
	for _, r := range runs {
		ok, err := matchAll(r, filters)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed, nil
}

func matchAll(r Run, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return r.Finished(), nil
	}
	for _, f := range filters {
		ok, err := f.Match(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

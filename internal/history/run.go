// Package history keeps a record of every process run.
package history

import (
	"time"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Run is the stored record of one process run.
type Run struct {
	ID        string    `yaml:"id"`
	Process   string    `yaml:"process"`
	StartedAt time.Time `yaml:"started_at"`
	EndedAt   time.Time `yaml:"ended_at,omitempty"`
	Status    Status    `yaml:"status"`
	Error     string    `yaml:"error,omitempty"`
}

func (r Run) Finished() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed
}

// Duration is the wall time of a finished run, or 0.
func (r Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

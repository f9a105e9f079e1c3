package cron

import (
	"context"
	"time"
)

// Log is emitted after a job has run
type Log struct {
	ID      string
	Entry   Entry
	Due     time.Time
	Started time.Time
	Ended   time.Time
	Output  []byte
	Err     error
}

func newLog(entry Entry, due, started time.Time) Log {
	return Log{
		ID:      entry.ID + "@" + due.UTC().Format(time.RFC3339),
		Entry:   entry,
		Due:     due,
		Started: started,
	}
}

// Duration is the wall time the action took.
func (l Log) Duration() time.Duration { return l.Ended.Sub(l.Started) }

// History stores completed runs.
type History interface {
	Record(ctx context.Context, l Log) error
}

// Recorder receives scheduling events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	JobFired(list ListTag)
	JobFinished(list ListTag, d time.Duration, err error)
	Reloaded(list ListTag, jobs int, err error)
	SetJobs(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) JobFired(ListTag)                           {}
func (NoopRecorder) JobFinished(ListTag, time.Duration, error) {}
func (NoopRecorder) Reloaded(ListTag, int, error)              {}
func (NoopRecorder) SetJobs(int)                               {}

package cron

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Option is a constructor function
type Option func(*Executor) error

// WithTab sets the table the executor schedules from.
func WithTab(tab Tab) Option {
	return func(e *Executor) error {
		e.tab = tab
		return nil
	}
}

// WithReloader sets the handler for reload requests.
func WithReloader(r Reloader) Option {
	return func(e *Executor) error {
		e.reloader = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) error {
		e.log = log.With().Str("component", "executor").Logger()
		return nil
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) error {
		e.clock = clock
		return nil
	}
}

// WithRecorder sets a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) error {
		e.recorder = r
		return nil
	}
}

// WithHistory records every completed run.
func WithHistory(h History) Option {
	return func(e *Executor) error {
		e.history = h
		return nil
	}
}

// WithLocation sets the location.
//
// Location defaults to time.Local.
func WithLocation(location *time.Location) Option {
	return func(e *Executor) error {
		e.location = location
		return nil
	}
}

package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrRunning is returned by Start when the executor loop is already running.
	ErrRunning = errors.New("executor already running")
	// ErrNoReloader is returned for reload requests when no Reloader is configured.
	ErrNoReloader = errors.New("no reloader configured")
)

// Reloader repopulates one list of the tab after the executor has cleared it.
type Reloader interface {
	Reload(ctx context.Context, list ListTag, now time.Time) (int, error)
}

// ReloaderFunc adapts a function to a Reloader.
type ReloaderFunc func(ctx context.Context, list ListTag, now time.Time) (int, error)

// Reload calls f.
func (f ReloaderFunc) Reload(ctx context.Context, list ListTag, now time.Time) (int, error) {
	return f(ctx, list, now)
}

type request struct {
	list ListTag
	done chan error
}

// New is the constructor for executor
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		clock:    clockwork.NewRealClock(),
		log:      zerolog.Nop(),
		recorder: NoopRecorder{},
		location: time.Local,
		requests: make(chan request),
	}

	for _, opt := range opts {
		err := opt(e)
		if err != nil {
			return nil, err
		}
	}

	if e.tab == nil {
		e.tab = NewMemoryTab()
	}
	return e, nil
}

// Executor is the single scheduling authority: one goroutine owns the wait
// for the next due entry and serializes firing with reloads.
type Executor struct {
	tab      Tab
	reloader Reloader
	history  History
	recorder Recorder
	clock    clockwork.Clock
	location *time.Location
	log      zerolog.Logger

	requests chan request
	running  atomic.Bool
	active   sync.WaitGroup
	inFlight atomic.Int64
}

// Tab returns the executor's table.
func (e *Executor) Tab() Tab { return e.tab }

// Now is the executor's clock reading in its location.
func (e *Executor) Now() time.Time { return e.clock.Now().In(e.location) }

// IsRunning returns true while the loop runs.
func (e *Executor) IsRunning() bool { return e.running.Load() }

// InFlight counts actions still running.
func (e *Executor) InFlight() int { return int(e.inFlight.Load()) }

// Start runs the loop until ctx is cancelled. Actions already started keep
// running; Wait blocks for them.
func (e *Executor) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	e.log.Info().Int("jobs", e.tab.Len()).Msg("executor started")
	for {
		e.recorder.SetJobs(e.tab.Len())

		var (
			timer clockwork.Timer
			wake  <-chan time.Time
		)
		due, ok := e.tab.Earliest()
		if ok {
			timer = e.clock.NewTimer(due.Sub(e.clock.Now()))
			wake = timer.Chan()
			e.log.Debug().Time("due", due).Msg("waiting for next job")
		} else {
			e.log.Debug().Msg("no jobs, waiting for requests")
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.log.Info().Msg("executor stopped")
			return nil
		case <-wake:
			e.fire(due)
		case req := <-e.requests:
			if timer != nil {
				timer.Stop()
			}
			req.done <- e.reload(ctx, req.list)
		}
	}
}

// Request asks the loop to reload one list and waits until it has been
// handled. Requests are served one at a time in arrival order.
func (e *Executor) Request(ctx context.Context, list ListTag) error {
	req := request{list: list, done: make(chan error, 1)}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upcoming returns the next n activations without firing them.
func (e *Executor) Upcoming(n int) []Fired {
	return e.tab.Upcoming(e.Now(), n)
}

// Wait blocks until every started action has returned.
func (e *Executor) Wait() {
	e.active.Wait()
}

func (e *Executor) fire(due time.Time) {
	fired := e.tab.Advance(due, e.Now())
	for _, f := range fired {
		log := e.log.With().
			Str("job_id", f.Entry.ID).
			Str("list", f.Entry.List.String()).
			Str("job", f.Entry.Description).
			Logger()

		if f.Skipped {
			log.Warn().Time("due", f.At).Msg("clock moved past later activations, skipping them")
		}
		if f.Exhausted {
			log.Warn().Msg("schedule has no further activation, dropping job")
		}

		e.recorder.JobFired(f.Entry.List)
		e.launch(f.Entry, f.At)
	}
}

func (e *Executor) launch(entry Entry, due time.Time) {
	c := FromContext(context.Background(), &entry).(*ctx)

	e.active.Add(1)
	e.inFlight.Add(1)
	go func() {
		defer e.active.Done()
		defer e.inFlight.Add(-1)

		c.start()
		started := e.Now()
		out, err := e.runAction(c, entry)
		c.finish()

		l := newLog(entry, due, started)
		l.Ended = e.Now()
		l.Output = out
		l.Err = err
		e.report(l)
	}()
}

func (e *Executor) runAction(c Context, entry Entry) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v\n%s", r, debug.Stack())
		}
	}()
	if entry.Action == nil {
		return nil, errors.New("entry has no action")
	}
	return entry.Action.Run(c)
}

func (e *Executor) report(l Log) {
	e.recorder.JobFinished(l.Entry.List, l.Duration(), l.Err)

	ev := e.log.Info()
	if l.Err != nil {
		ev = e.log.Error().Err(l.Err)
	}
	ev = ev.Str("job_id", l.Entry.ID).
		Str("list", l.Entry.List.String()).
		Str("job", l.Entry.Description).
		Dur("duration", l.Duration())
	if len(l.Output) > 0 {
		ev = ev.Bytes("output", l.Output)
	}
	ev.Msg("job finished")

	if e.history != nil {
		if err := e.history.Record(context.Background(), l); err != nil {
			e.log.Warn().Err(err).Str("job_id", l.Entry.ID).Msg("failed to record job run")
		}
	}
}

// reload clears the list first and then repopulates it. A failed reload
// leaves the list empty until the next successful one; other lists are
// untouched.
func (e *Executor) reload(ctx context.Context, list ListTag) error {
	log := e.log.With().Str("list", list.String()).Logger()
	if e.reloader == nil {
		log.Warn().Msg("reload requested but no reloader configured")
		return ErrNoReloader
	}

	removed := e.tab.Clear(list)
	n, err := e.reloader.Reload(ctx, list, e.Now())
	e.recorder.Reloaded(list, n, err)
	if err != nil {
		log.Error().Err(err).Int("removed", removed).Msg("reload failed, list left empty")
		return errors.Wrapf(err, "reload %s", list)
	}
	log.Info().Int("removed", removed).Int("installed", n).Msg("list reloaded")
	return nil
}

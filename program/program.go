// Package program is the programmable dialect: a source registers its jobs
// through calls on a Registrar instead of being parsed line by line.
package program

import (
	"fmt"

	"github.com/pkg/errors"

	cron "github.com/kaiserkarel/mcron"
)

// Registrar receives job registrations.
type Registrar interface {
	Job(schedule cron.Schedule, action cron.Action, description string)
}

// Program registers jobs.
type Program interface {
	Register(r Registrar) error
}

// Func adapts a function to a Program.
type Func func(r Registrar) error

// Register calls f.
func (f Func) Register(r Registrar) error { return f(r) }

// Job is one registration.
type Job struct {
	Expression  string
	Schedule    cron.Schedule
	Action      cron.Action
	Description string
}

// Collector stages registrations; it is the Registrar the loader hands out.
type Collector struct {
	Jobs []Job
	err  error
}

// Job implements Registrar.
func (c *Collector) Job(schedule cron.Schedule, action cron.Action, description string) {
	if c.err != nil {
		return
	}
	n := len(c.Jobs) + 1
	switch {
	case schedule == nil:
		c.err = errors.Errorf("job %d (%s): no schedule", n, description)
		return
	case action == nil:
		c.err = errors.Errorf("job %d (%s): no action", n, description)
		return
	}

	expr := "<program>"
	if s, ok := schedule.(fmt.Stringer); ok {
		expr = s.String()
	}
	c.Jobs = append(c.Jobs, Job{Expression: expr, Schedule: schedule, Action: action, Description: description})
}

// Collect runs p and returns everything it registered. Nothing is returned if
// the program fails or registers an invalid job.
func Collect(p Program) ([]Job, error) {
	c := &Collector{}
	if err := p.Register(c); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.Jobs, nil
}

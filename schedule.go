// origin: https://github.com/robfig/cron/blob/master/schedule.go

package cron

import "time"

// The Schedule describes a job's duty cycle.
type Schedule interface {
	// Return the next activation time, strictly later than the given time.
	// Next is invoked when an entry is installed, and then each time it fires.
	// A zero time means the schedule has no further activation.
	Next(time.Time) time.Time
}

// OffsetSchedule fires at a fixed offset from every activation of another
// schedule. A negative offset fires before the referenced activation.
type OffsetSchedule struct {
	Base   Schedule
	Offset time.Duration
}

// Offset returns a relative schedule firing d after each activation of base.
func Offset(base Schedule, d time.Duration) OffsetSchedule {
	return OffsetSchedule{Base: base, Offset: d}
}

// Next returns base.Next(t-offset)+offset, which is strictly after t whenever
// base honours the Schedule contract.
func (o OffsetSchedule) Next(t time.Time) time.Time {
	n := o.Base.Next(t.Add(-o.Offset))
	if n.IsZero() {
		return n
	}
	return n.Add(o.Offset)
}

// EveryMinute activates at second zero of every minute.
var EveryMinute Schedule = mustSpec(Fields{
	Minute: Any(), Hour: Any(), Dom: Any(), Month: Any(), Dow: Any(),
})

func mustSpec(f Fields) *SpecSchedule {
	s, err := NewSpec(f)
	if err != nil {
		panic(err)
	}
	return s
}

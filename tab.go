package cron

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNoSchedule is returned when an entry is installed without a schedule.
var ErrNoSchedule = errors.New("entry has no schedule")

// Tab (crontab is short for cron table) holds the active entries, partitioned
// by list tag and ordered by next activation within each list.
type Tab interface {
	// Put schedules entries relative to now and installs them.
	Put(now time.Time, entries ...*Entry) error

	// Clear removes every entry of one list and returns how many were removed.
	Clear(list ListTag) int

	// Entries returns copies of one list's entries in activation order.
	Entries(list ListTag) []Entry

	// Len counts entries across all lists.
	Len() int

	// Earliest returns the soonest activation across all lists.
	Earliest() (time.Time, bool)

	// Advance fires every entry due at or before t, reschedules it, and
	// returns the fired entries as they were when due.
	Advance(t, now time.Time) []Fired

	// Upcoming lists the next n activations after now without firing them.
	Upcoming(now time.Time, n int) []Fired
}

// Fired describes one activation of an entry.
type Fired struct {
	Entry Entry
	At    time.Time

	// Skipped is set when activations were passed over because the clock
	// had already moved beyond them.
	Skipped bool

	// Exhausted is set when the schedule has no further activation and the
	// entry was dropped.
	Exhausted bool
}

// NewMemoryTab returns an in-memory Tab. This is a non-persistent storage.
func NewMemoryTab() *MemoryTab {
	return &MemoryTab{
		lists: make(map[ListTag]ByTimeAsc),
	}
}

// MemoryTab is a simple storage backend.
type MemoryTab struct {
	mu    sync.RWMutex
	lists map[ListTag]ByTimeAsc
}

// Put schedules and installs entries. Either all entries are installed or none.
func (m *MemoryTab) Put(now time.Time, entries ...*Entry) error {
	for _, e := range entries {
		if e.Schedule == nil {
			return errors.Wrapf(ErrNoSchedule, "entry %q", e.Description)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[ListTag]struct{})
	for _, e := range entries {
		e.schedule(now)
		m.lists[e.List] = append(m.lists[e.List], e)
		touched[e.List] = struct{}{}
	}
	for list := range touched {
		sort.Stable(m.lists[list])
	}
	return nil
}

// Clear deletes all entries of one list from the tab.
func (m *MemoryTab) Clear(list ListTag) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.lists[list])
	delete(m.lists, list)
	return n
}

// Entries returns copies of the entries of one list.
func (m *MemoryTab) Entries(list ListTag) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]Entry, 0, len(m.lists[list]))
	for _, e := range m.lists[list] {
		res = append(res, *e)
	}
	return res
}

// Len returns the number of entries in all lists.
func (m *MemoryTab) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, l := range m.lists {
		n += len(l)
	}
	return n
}

// Earliest returns the head of the earliest list. Lists are sorted, so only
// heads need comparing.
func (m *MemoryTab) Earliest() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var min time.Time
	for _, l := range m.lists {
		if len(l) == 0 || l[0].nextRun.IsZero() {
			continue
		}
		if min.IsZero() || l[0].nextRun.Before(min) {
			min = l[0].nextRun
		}
	}
	return min, !min.IsZero()
}

// Advance fires all entries due at t. Entries whose next activation would
// still not be after now are moved forward from now instead of firing again.
func (m *MemoryTab) Advance(t, now time.Time) []Fired {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fired []Fired
	for list, entries := range m.lists {
		kept := entries[:0]
		changed := false
		for _, e := range entries {
			if e.nextRun.IsZero() || e.nextRun.After(t) {
				kept = append(kept, e)
				continue
			}

			changed = true
			f := Fired{Entry: *e, At: e.nextRun}
			e.lastRun = t
			e.nextRun = e.Schedule.Next(t)
			if !e.nextRun.IsZero() && !e.nextRun.After(now) {
				f.Skipped = true
				e.nextRun = e.Schedule.Next(now)
			}
			if e.nextRun.IsZero() {
				f.Exhausted = true
			} else {
				kept = append(kept, e)
			}
			fired = append(fired, f)
		}
		if !changed {
			continue
		}
		for i := len(kept); i < len(entries); i++ {
			entries[i] = nil
		}
		if len(kept) == 0 {
			delete(m.lists, list)
			continue
		}
		sort.Stable(kept)
		m.lists[list] = kept
	}
	return fired
}

// Upcoming simulates the next n activations across all lists.
func (m *MemoryTab) Upcoming(now time.Time, n int) []Fired {
	m.mu.RLock()
	var sim []Entry
	for _, l := range m.lists {
		for _, e := range l {
			sim = append(sim, *e)
		}
	}
	m.mu.RUnlock()

	for i := range sim {
		if !sim[i].nextRun.IsZero() && !sim[i].nextRun.After(now) {
			sim[i].nextRun = sim[i].Schedule.Next(now)
		}
	}

	var res []Fired
	for len(res) < n {
		best := -1
		for i := range sim {
			next := sim[i].nextRun
			if next.IsZero() {
				continue
			}
			if best < 0 || next.Before(sim[best].nextRun) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		res = append(res, Fired{Entry: sim[best], At: sim[best].nextRun})
		sim[best].nextRun = sim[best].Schedule.Next(sim[best].nextRun)
	}
	return res
}

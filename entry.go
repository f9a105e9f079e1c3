package cron

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListTag names the job list an entry belongs to: the system list, or the
// list of one user.
type ListTag struct {
	user string
}

// System is the list of jobs read from the system crontab.
var System = ListTag{}

// User returns the list tag for the named user's jobs.
func User(name string) ListTag { return ListTag{user: name} }

// IsSystem reports whether l is the system list.
func (l ListTag) IsSystem() bool { return l.user == "" }

// Owner returns the user of a user list, or "" for the system list.
func (l ListTag) Owner() string { return l.user }

func (l ListTag) String() string {
	if l.IsSystem() {
		return "system"
	}
	return "user:" + l.user
}

// Entry specifies a single (crontab) entry, an action which is executed periodically.
type Entry struct {
	// Globally unique ID
	ID string

	// Expression is the schedule as written in the source, for display.
	Expression string

	Schedule Schedule

	Action Action

	// Owner is the account the action runs as.
	Owner string

	List ListTag

	Description string

	nextRun time.Time
	lastRun time.Time
}

// NewEntry returns an entry with a fresh ID.
func NewEntry(expr string, schedule Schedule, action Action, owner string, list ListTag, description string) *Entry {
	return &Entry{
		ID:          uuid.NewString(),
		Expression:  expr,
		Schedule:    schedule,
		Action:      action,
		Owner:       owner,
		List:        list,
		Description: strings.TrimSpace(description),
	}
}

// Next returns the time when the entry is due next.
func (e *Entry) Next() time.Time { return e.nextRun }

// Last returns the time the entry last fired.
func (e *Entry) Last() time.Time { return e.lastRun }

// schedule computes the first activation after t.
func (e *Entry) schedule(t time.Time) {
	e.nextRun = e.Schedule.Next(t)
}

// ByTimeAsc defines ordering for []*Entry. Entries without a next activation
// sort last.
type ByTimeAsc []*Entry

func (b ByTimeAsc) Len() int { return len(b) }
func (b ByTimeAsc) Less(i, j int) bool {
	ni, nj := b[i].nextRun, b[j].nextRun
	if ni.IsZero() || nj.IsZero() {
		return !ni.IsZero()
	}
	return ni.Before(nj)
}
func (b ByTimeAsc) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

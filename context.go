package cron

import (
	"context"
	"sync"
)

// Context is passed to a running action.
type Context interface {
	context.Context
	Running() bool
	Cancel()
	Entry() Entry
}

type ctx struct {
	mu sync.RWMutex
	context.Context
	entry   Entry
	cf      context.CancelFunc
	running bool
}

func (c *ctx) start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = true
}

func (c *ctx) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.cf()
}

func (c *ctx) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.running
}

func (c *ctx) Cancel() {
	c.cf()
}

func (c *ctx) Entry() Entry {
	return c.entry
}

// FromContext derives an action context for entry. The entry is copied so
// the action never observes later rescheduling.
func FromContext(ct context.Context, entry *Entry) Context {
	ct, cf := context.WithCancel(ct)

	return &ctx{
		Context: ct,
		cf:      cf,
		entry:   *entry,
	}
}

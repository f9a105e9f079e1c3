package daemon

import (
	"context"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cron "github.com/kaiserkarel/mcron"
)

const (
	checkerDescription = "/etc/crontab update checker."
	checkerLead        = 6 * time.Second
	checkerTimeout     = 30 * time.Second
)

// systemChecker notices edits of the system crontab made without a control
// request and asks the executor to reload it.
type systemChecker struct {
	path    string
	request func(ctx context.Context, list cron.ListTag) error
	log     zerolog.Logger

	mu     sync.Mutex
	loaded uint64
}

// digest hashes the file content; a missing file hashes to zero.
func digest(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64() | 1
}

// remember records the content the system list was last loaded from.
func (c *systemChecker) remember() {
	sum := digest(c.path)
	c.mu.Lock()
	c.loaded = sum
	c.mu.Unlock()
}

func (c *systemChecker) changed() bool {
	sum := digest(c.path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return sum != c.loaded
}

// entry is the ordinary table entry that runs the check shortly before
// every minute boundary.
func (c *systemChecker) entry(owner string) *cron.Entry {
	return cron.NewEntry(
		"@minutely -6s",
		cron.Offset(cron.EveryMinute, -checkerLead),
		cron.ActionFunc(c.run),
		owner,
		cron.User(owner),
		checkerDescription,
	)
}

func (c *systemChecker) run(cron.Context) error {
	if !c.changed() {
		return nil
	}
	c.log.Info().Str("path", c.path).Msg("system crontab changed, reloading")

	ctx, cancel := context.WithTimeout(context.Background(), checkerTimeout)
	defer cancel()
	return c.request(ctx, cron.System)
}

package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	cron "github.com/kaiserkarel/mcron"
	"github.com/kaiserkarel/mcron/loader"
)

const watchDebounce = 250 * time.Millisecond

// watch asks for a reload of the owner's list whenever a job file in dirs
// changes. Bursts of events are folded into one request.
func (d *Daemon) watch(ctx context.Context, dirs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	watched := 0
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			d.log.Debug().Err(err).Str("dir", dir).Msg("not watching directory")
			continue
		}
		watched++
	}
	if watched == 0 {
		d.log.Warn().Strs("dirs", dirs).Msg("no personal directory to watch")
		<-ctx.Done()
		return nil
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if err := d.executor.Request(ctx, cron.User(d.owner)); err != nil && ctx.Err() == nil {
				d.log.Error().Err(err).Msg("reload after change failed")
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, isJob, _ := loader.DialectOf(ev.Name); !isJob {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				d.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("job file changed")
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

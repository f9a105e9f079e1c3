package daemon

import (
	"context"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	cron "github.com/kaiserkarel/mcron"
	"github.com/kaiserkarel/mcron/internal/users"
)

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Daemon) { d.log = log }
}

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Daemon) { d.clock = clock }
}

// WithUsers replaces the host account database.
func WithUsers(lookup users.Lookup) Option {
	return func(d *Daemon) { d.users = lookup }
}

// WithOwner names the account the daemon acts as. ModeCron keeps the system
// crontab checker in this user's list; ModeMcron loads this user's files.
func WithOwner(name string) Option {
	return func(d *Daemon) { d.owner = name }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r cron.Recorder) Option {
	return func(d *Daemon) { d.recorder = r }
}

// WithHistory sets where finished runs are recorded.
func WithHistory(h cron.History) Option {
	return func(d *Daemon) { d.history = h }
}

// WithIO sets standard input and output.
func WithIO(stdin io.Reader, stdout io.Writer) Option {
	return func(d *Daemon) {
		d.stdin = stdin
		d.stdout = stdout
	}
}

// WithNotifier replaces the service manager notification.
func WithNotifier(notify func(state string)) Option {
	return func(d *Daemon) { d.notify = notify }
}

// WithService runs fn next to the executor until shutdown.
func WithService(fn func(ctx context.Context) error) Option {
	return func(d *Daemon) { d.services = append(d.services, fn) }
}

// WithEUID overrides the effective uid used for privilege checks.
func WithEUID(euid int) Option {
	return func(d *Daemon) { d.euid = euid }
}

// WithLocation sets the zone schedules without their own zone are read in.
func WithLocation(loc *time.Location) Option {
	return func(d *Daemon) { d.location = loc }
}

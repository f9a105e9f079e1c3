package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	cron "github.com/kaiserkarel/mcron"
	"github.com/kaiserkarel/mcron/control"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
	"github.com/kaiserkarel/mcron/loader"
)

// Daemon is one scheduler process.
type Daemon struct {
	cfg      Config
	log      zerolog.Logger
	clock    clockwork.Clock
	users    users.Lookup
	owner    string
	recorder cron.Recorder
	history  cron.History
	stdin    io.Reader
	stdout   io.Writer
	notify   func(state string)
	services []func(ctx context.Context) error
	euid     int
	location *time.Location

	tab      *cron.MemoryTab
	loader   *loader.Loader
	executor *cron.Executor
	checker  *systemChecker
}

// New prepares a daemon; nothing is read or bound until Run.
func New(cfg Config, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:      cfg,
		log:      zerolog.Nop(),
		clock:    clockwork.NewRealClock(),
		users:    users.System{},
		owner:    "root",
		recorder: cron.NoopRecorder{},
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		notify:   func(state string) { _, _ = sd.SdNotify(false, state) },
		euid:     os.Geteuid(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.Mode == ModeCron {
		d.cfg = d.cfg.WithDefaults()
	}
	return d
}

// Executor is available once Run has started.
func (d *Daemon) Executor() *cron.Executor { return d.executor }

// Run loads the sources and schedules jobs until ctx is cancelled. The pid
// file and the control socket are removed before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Mode == ModeCron && d.cfg.RequireRoot && d.euid != 0 {
		return cronerr.New(cronerr.CategoryPrivilege, "this program must be run by the root user")
	}
	if err := d.setup(); err != nil {
		return err
	}

	switch d.cfg.Mode {
	case ModeCron:
		return d.runCron(ctx)
	case ModeMcron:
		return d.runMcron(ctx)
	}
	return cronerr.Newf(cronerr.CategoryUsage, "unknown mode %d", d.cfg.Mode)
}

func (d *Daemon) setup() error {
	shell := d.cfg.Shell
	if shell == "" {
		shell = cron.DefaultShell
	}

	d.tab = cron.NewMemoryTab()
	d.loader = loader.New(d.tab, d.users,
		loader.WithLogger(d.log),
		loader.WithCredentials(d.euid == 0),
		loader.WithShell(shell),
	)

	reloader := cron.ReloaderFunc(d.reloadCron)
	if d.cfg.Mode == ModeMcron {
		reloader = d.reloadMcron
	}

	opts := []cron.Option{
		cron.WithTab(d.tab),
		cron.WithClock(d.clock),
		cron.WithLocation(d.location),
		cron.WithLogger(d.log),
		cron.WithRecorder(d.recorder),
		cron.WithReloader(reloader),
	}
	if d.history != nil {
		opts = append(opts, cron.WithHistory(d.history))
	}
	executor, err := cron.New(opts...)
	if err != nil {
		return errors.Wrap(err, "create executor")
	}
	d.executor = executor
	return nil
}

func (d *Daemon) runCron(ctx context.Context) error {
	if d.cfg.Schedule <= 0 {
		pid, err := CreatePIDFile(d.cfg.PIDFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := pid.Remove(); err != nil {
				d.log.Error().Err(err).Msg("cannot remove pid file")
			}
		}()
	}

	now := d.executor.Now()
	n, err := d.loader.LoadSpool(ctx, d.cfg.SpoolDir, now)
	if err != nil {
		return err
	}
	d.log.Info().Str("dir", d.cfg.SpoolDir).Int("jobs", n).Msg("user crontabs loaded")

	d.checker = &systemChecker{path: d.cfg.SystemCrontab, request: d.executor.Request, log: d.log}
	if _, err := d.reloadSystem(ctx, now); err != nil {
		d.log.Error().Err(err).Str("path", d.cfg.SystemCrontab).Msg("cannot load system crontab")
	}
	if d.cfg.NoEtc {
		d.log.Warn().Msg("not checking the system crontab for changes, send a reload request after editing it")
	} else if err := d.tab.Put(now, d.checker.entry(d.owner)); err != nil {
		return errors.Wrap(err, "install system crontab checker")
	}

	if d.cfg.Schedule > 0 {
		return d.printSchedule()
	}

	srv, err := control.Listen(d.cfg.Socket,
		control.WithLogger(d.log),
		control.WithSentinel(d.cfg.SystemCrontab),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	handle := func(ctx context.Context, req control.Request) error {
		return d.executor.Request(ctx, req.List)
	}
	return d.serve(ctx, func(ctx context.Context) error { return srv.Serve(ctx, handle) })
}

func (d *Daemon) runMcron(ctx context.Context) error {
	if _, err := d.users.Lookup(d.owner); err != nil {
		return cronerr.Wrap(err, cronerr.CategoryUserSource, "cannot resolve the invoking user")
	}
	n, err := d.loadOwn(ctx, d.executor.Now())
	if err != nil {
		return err
	}
	d.log.Info().Str("user", d.owner).Int("jobs", n).Msg("job files loaded")

	if d.cfg.Schedule > 0 {
		return d.printSchedule()
	}

	var extra []func(ctx context.Context) error
	if d.cfg.Watch && len(d.cfg.Files) == 0 {
		u, _ := d.users.Lookup(d.owner)
		extra = append(extra, func(ctx context.Context) error {
			return d.watch(ctx, loader.PersonalDirs(u.Home))
		})
	}
	return d.serve(ctx, extra...)
}

// serve runs the executor and every service until ctx is cancelled or one
// of them fails.
func (d *Daemon) serve(ctx context.Context, extra ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runs := append([]func(ctx context.Context) error{d.executor.Start}, extra...)
	runs = append(runs, d.services...)

	errs := make(chan error, len(runs))
	for _, run := range runs {
		go func(run func(ctx context.Context) error) { errs <- run(ctx) }(run)
	}
	d.notify(sd.SdNotifyReady)
	d.log.Info().Str("mode", d.cfg.Mode.String()).Msg("daemon running")

	var first error
	for range runs {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
		cancel()
	}

	d.notify(sd.SdNotifyStopping)
	d.log.Info().Int("in_flight", d.executor.InFlight()).Msg("daemon stopped")
	return first
}

func (d *Daemon) reloadCron(ctx context.Context, list cron.ListTag, now time.Time) (int, error) {
	if list.IsSystem() {
		return d.reloadSystem(ctx, now)
	}

	name := list.Owner()
	if _, err := d.users.Lookup(name); err != nil {
		return 0, err
	}
	n, err := d.loader.LoadUser(ctx, d.cfg.SpoolDir, name, now)

	// Clearing the owner's list removed the checker too.
	if name == d.owner && d.checker != nil && !d.cfg.NoEtc {
		if perr := d.tab.Put(now, d.checker.entry(d.owner)); perr != nil && err == nil {
			err = perr
		}
	}
	return n, err
}

// reloadSystem records the digest before loading, so an edit racing the load
// is seen by the next check.
func (d *Daemon) reloadSystem(ctx context.Context, now time.Time) (int, error) {
	d.checker.remember()
	return d.loader.LoadSystem(ctx, d.cfg.SystemCrontab, now)
}

func (d *Daemon) reloadMcron(ctx context.Context, list cron.ListTag, now time.Time) (int, error) {
	if list != cron.User(d.owner) {
		return 0, errors.Errorf("%s is not served by this daemon", list)
	}
	return d.loadOwn(ctx, now)
}

// loadOwn installs the ModeMcron sources. Explicit files must all load.
func (d *Daemon) loadOwn(ctx context.Context, now time.Time) (int, error) {
	u, err := d.users.Lookup(d.owner)
	if err != nil {
		return 0, err
	}
	if len(d.cfg.Files) == 0 {
		return d.loader.LoadPersonal(ctx, u, loader.PersonalDirs(u.Home), now)
	}

	total := 0
	list := cron.User(u.Name)
	for _, path := range d.cfg.Files {
		src, err := d.source(path)
		if err != nil {
			return total, err
		}
		n, err := d.loader.Load(ctx, src, u.Name, list, now)
		if err != nil {
			return total, cronerr.Wrap(err, cronerr.CategoryConfig, "cannot load "+path)
		}
		total += n
	}
	return total, nil
}

func (d *Daemon) source(path string) (loader.Source, error) {
	if path == "-" {
		return loader.Reader("standard input", d.stdin, d.cfg.Stdin), nil
	}
	dialect, ok, err := loader.DialectOf(path)
	if err != nil {
		return loader.Source{}, cronerr.Wrap(err, cronerr.CategoryConfig, path)
	}
	if !ok {
		dialect = loader.Vixie
	}
	return loader.File(filepath.Clean(path), dialect), nil
}

func (d *Daemon) printSchedule() error {
	for _, f := range d.executor.Upcoming(d.cfg.Schedule) {
		if _, err := fmt.Fprintf(d.stdout, "%s\n%s\n\n", f.At.Format("Mon Jan _2 15:04:05 2006 -0700"), f.Entry.Description); err != nil {
			return errors.Wrap(err, "print schedule")
		}
	}
	return nil
}

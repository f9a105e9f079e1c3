// Package loader turns job sources into table entries. Owner and list are
// always passed in; nothing about the source being read is kept between
// calls.
package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	cron "github.com/kaiserkarel/mcron"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
	"github.com/kaiserkarel/mcron/program"
	"github.com/kaiserkarel/mcron/vixie"
)

const defaultPath = "/usr/bin:/bin"

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) { l.log = log.With().Str("component", "loader").Logger() }
}

// WithCredentials makes commands switch to their owner's uid and gid. Only
// useful when the daemon runs as root.
func WithCredentials(on bool) Option {
	return func(l *Loader) { l.switchUser = on }
}

// WithShell sets the shell used when a source does not set SHELL.
func WithShell(shell string) Option {
	return func(l *Loader) { l.shell = shell }
}

// Loader parses sources and installs their jobs into a tab.
type Loader struct {
	tab        cron.Tab
	users      users.Lookup
	log        zerolog.Logger
	switchUser bool
	shell      string
}

// New returns a Loader installing into tab.
func New(tab cron.Tab, lookup users.Lookup, opts ...Option) *Loader {
	l := &Loader{
		tab:   tab,
		users: lookup,
		log:   zerolog.Nop(),
		shell: cron.DefaultShell,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses src on behalf of owner and installs the jobs into list. The
// whole source is parsed before anything is installed, so a malformed source
// installs nothing. For the system list, vixie lines name their own user.
func (l *Loader) Load(ctx context.Context, src Source, owner string, list cron.ListTag, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rc, err := src.Open()
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", src.Name)
	}
	defer rc.Close()

	var entries []*cron.Entry
	switch src.Dialect {
	case Vixie:
		entries, err = l.vixie(rc, owner, list)
	case YAML:
		entries, err = l.yaml(rc, owner, list)
	default:
		err = ErrUnsupportedDialect
	}
	if err != nil {
		return 0, errors.Wrapf(err, "%s", src.Name)
	}

	if err := l.tab.Put(now, entries...); err != nil {
		return 0, errors.Wrapf(err, "%s", src.Name)
	}
	l.log.Debug().Str("source", src.Name).Str("list", list.String()).Int("jobs", len(entries)).Msg("source loaded")
	return len(entries), nil
}

// LoadProgram installs the jobs registered by p into list.
func (l *Loader) LoadProgram(ctx context.Context, p program.Program, owner string, list cron.ListTag, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := l.program(p, owner, list)
	if err != nil {
		return 0, err
	}
	if err := l.tab.Put(now, entries...); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (l *Loader) vixie(r io.Reader, owner string, list cron.ListTag) ([]*cron.Entry, error) {
	jobs, err := vixie.Parse(r, vixie.Options{System: list.IsSystem()})
	if err != nil {
		return nil, err
	}

	entries := make([]*cron.Entry, 0, len(jobs))
	for _, job := range jobs {
		if job.IsReboot() {
			l.log.Warn().Int("line", job.Line).Str("command", job.Command).Str("list", list.String()).
				Msg("@reboot jobs are not run, skipping")
			continue
		}
		name := owner
		if list.IsSystem() {
			name = job.User
		}
		u, err := l.users.Lookup(name)
		if err != nil {
			return nil, &vixie.ParseError{Line: job.Line, Text: job.Command, Err: err}
		}

		cmd := l.command(u, job.Env)
		cmd.Line = job.Command
		cmd.Input = job.Input
		entries = append(entries, cron.NewEntry(job.Expression, job.Schedule, cmd, u.Name, list, job.Command))
	}
	return entries, nil
}

func (l *Loader) yaml(r io.Reader, owner string, list cron.ListTag) ([]*cron.Entry, error) {
	f, err := program.Decode(r)
	if err != nil {
		return nil, err
	}
	return l.program(f, owner, list)
}

func (l *Loader) program(p program.Program, owner string, list cron.ListTag) ([]*cron.Entry, error) {
	jobs, err := program.Collect(p)
	if err != nil {
		return nil, err
	}
	u, err := l.users.Lookup(owner)
	if err != nil {
		return nil, err
	}

	entries := make([]*cron.Entry, 0, len(jobs))
	for _, job := range jobs {
		action := job.Action
		if c, ok := action.(*cron.Command); ok {
			bound := l.command(u, c.Env)
			bound.Line = c.Line
			bound.Input = c.Input
			action = bound
		}
		entries = append(entries, cron.NewEntry(job.Expression, job.Schedule, action, u.Name, list, job.Description))
	}
	return entries, nil
}

// command prepares a Command running as u with env layered over the login
// defaults. A SHELL assignment in env selects the shell.
func (l *Loader) command(u users.User, env []string) *cron.Command {
	cmd := &cron.Command{
		Env: append([]string{
			"HOME=" + u.Home,
			"LOGNAME=" + u.Name,
			"USER=" + u.Name,
			"SHELL=" + l.shell,
			"PATH=" + defaultPath,
		}, env...),
		Dir:   u.Home,
		Shell: l.shell,
	}
	for _, kv := range env {
		if shell, ok := strings.CutPrefix(kv, "SHELL="); ok && shell != "" {
			cmd.Shell = shell
		}
	}
	if l.switchUser && !u.IsRoot() {
		cmd.Credential = &syscall.Credential{Uid: u.UID, Gid: u.GID}
	}
	return cmd
}

// LoadSpool installs every file of dir that is named after a local user. A
// file that fails to load is logged and skipped. An unreadable directory is
// an error.
func (l *Loader) LoadSpool(ctx context.Context, dir string, now time.Time) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, cronerr.Wrap(err, cronerr.CategorySystemSource, "cannot read spool directory "+dir)
	}

	total := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if _, err := l.users.Lookup(name); err != nil {
			l.log.Warn().Str("file", name).Msg("spool file does not belong to a known user, ignoring it")
			continue
		}
		n, err := l.LoadUser(ctx, dir, name, now)
		if err != nil {
			l.log.Error().Err(err).Str("user", name).Msg("cannot load crontab")
			continue
		}
		total += n
	}
	return total, nil
}

// LoadUser installs the spool crontab of name. A missing crontab installs
// nothing and is not an error.
func (l *Loader) LoadUser(ctx context.Context, dir, name string, now time.Time) (int, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return l.Load(ctx, File(path, Vixie), name, cron.User(name), now)
}

// LoadSystem installs the system crontab. A missing file installs nothing.
func (l *Loader) LoadSystem(ctx context.Context, path string, now time.Time) (int, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return l.Load(ctx, File(path, Vixie), "", cron.System, now)
}

// PersonalDirs returns the directories scanned for a user's own job files.
func PersonalDirs(home string) []string {
	config := os.Getenv("XDG_CONFIG_HOME")
	if config == "" {
		config = filepath.Join(home, ".config")
	}
	return []string{filepath.Join(home, ".cron"), filepath.Join(config, "cron")}
}

// LoadPersonal installs job files found in dirs into the user's list. Files
// are read in name order and picked by suffix. It fails only when no
// directory could be read at all.
func (l *Loader) LoadPersonal(ctx context.Context, u users.User, dirs []string, now time.Time) (int, error) {
	var (
		total    int
		readable bool
	)
	for _, dir := range dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			l.log.Debug().Err(err).Str("dir", dir).Msg("cannot read personal directory")
			continue
		}
		readable = true

		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, f.Name())
			d, ok, err := DialectOf(path)
			if !ok {
				continue
			}
			if err != nil {
				l.log.Error().Err(err).Str("file", path).Msg("cannot load job file")
				continue
			}
			n, err := l.Load(ctx, File(path, d), u.Name, cron.User(u.Name), now)
			if err != nil {
				l.log.Error().Err(err).Str("file", path).Msg("cannot load job file")
				continue
			}
			total += n
		}
	}
	if !readable {
		return 0, cronerr.Newf(cronerr.CategoryUserSource, "cannot read personal cron directories %v", dirs)
	}
	return total, nil
}

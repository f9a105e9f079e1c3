// Package crontab is the client that installs users' crontabs into the
// daemon's spool directory. A new crontab is validated before it replaces
// the installed one, and the daemon is told about it afterwards.
package crontab

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kaiserkarel/mcron/control"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
	"github.com/kaiserkarel/mcron/vixie"
)

// Paths are the files shared with the daemon.
type Paths struct {
	SpoolDir  string
	Socket    string
	AllowFile string
	DenyFile  string
	TmpDir    string
}

// Defaults for Paths.
const (
	DefaultAllowFile = "/var/cron/allow"
	DefaultDenyFile  = "/var/cron/deny"
	DefaultTmpDir    = "/tmp"
)

// Editor edits the file at path interactively.
type Editor func(ctx context.Context, path string) error

// Notifier tells the daemon that identity's crontab changed.
type Notifier func(ctx context.Context, socket, identity string) error

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "crontab").Logger() }
}

// WithIO sets the terminal streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(c *Client) {
		c.in = bufio.NewReader(stdin)
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithEditor replaces the $VISUAL/$EDITOR launcher.
func WithEditor(e Editor) Option {
	return func(c *Client) { c.editor = e }
}

// WithNotifier replaces the control socket notification.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notify = n }
}

// Client acts on behalf of the invoking user.
type Client struct {
	paths   Paths
	invoker users.User
	users   users.Lookup

	in     *bufio.Reader
	stdout io.Writer
	stderr io.Writer
	editor Editor
	notify Notifier
	log    zerolog.Logger
}

// New returns a client for invoker.
func New(paths Paths, invoker users.User, lookup users.Lookup, opts ...Option) *Client {
	if paths.TmpDir == "" {
		paths.TmpDir = DefaultTmpDir
	}
	c := &Client{
		paths:   paths,
		invoker: invoker,
		users:   lookup,
		in:      bufio.NewReader(os.Stdin),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		editor:  RunEditor,
		notify:  control.Notify,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run authorizes req and performs it.
func (c *Client) Run(ctx context.Context, req Request) error {
	target, err := c.Authorize(req.User)
	if err != nil {
		return err
	}

	switch req.Op {
	case OpList:
		return c.List(target)
	case OpRemove:
		return c.Remove(ctx, target)
	case OpReplace:
		return c.Replace(ctx, target, req.File)
	case OpEdit:
		return c.Edit(ctx, target)
	}
	return cronerr.Newf(cronerr.CategoryUsage, "unknown operation %s", req.Op)
}

// Authorize checks that the invoker may act on name's crontab and returns
// the account. An empty name is the invoker.
func (c *Client) Authorize(name string) (users.User, error) {
	if name != "" && name != c.invoker.Name && !c.invoker.IsRoot() {
		return users.User{}, cronerr.New(cronerr.CategoryPrivilege, "only root can use the -u option")
	}
	if err := c.checkAccess(c.invoker.Name); err != nil {
		return users.User{}, err
	}
	if name == "" || name == c.invoker.Name {
		return c.invoker, nil
	}

	u, err := c.users.Lookup(name)
	if err != nil {
		return users.User{}, cronerr.Wrap(err, cronerr.CategoryUsage, "no such user")
	}
	return u, nil
}

// checkAccess applies the allow file, if present, and then the deny file.
func (c *Client) checkAccess(name string) error {
	denied := cronerr.Newf(cronerr.CategoryAccess, "access denied for %s", name)
	if listed, exists, err := inList(c.paths.AllowFile, name); err != nil {
		return err
	} else if exists {
		if !listed {
			return denied
		}
		return nil
	}
	if listed, _, err := inList(c.paths.DenyFile, name); err != nil {
		return err
	} else if listed {
		return denied
	}
	return nil
}

// inList reports whether name appears on a line of its own in path.
func inList(path, name string) (found, exists bool, err error) {
	if path == "" {
		return false, false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, true, cronerr.Wrap(err, cronerr.CategoryAccess, "cannot read "+path)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == name {
			return true, true, nil
		}
	}
	return false, true, nil
}

func (c *Client) installed(u users.User) string {
	return filepath.Join(c.paths.SpoolDir, u.Name)
}

// List prints u's installed crontab.
func (c *Client) List(u users.User) error {
	data, err := os.ReadFile(c.installed(u))
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(c.stderr, "No crontab for %s exists.\n", u.Name)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read crontab")
	}
	_, err = c.stdout.Write(data)
	return err
}

// Remove deletes u's crontab and tells the daemon.
func (c *Client) Remove(ctx context.Context, u users.User) error {
	if err := os.Remove(c.installed(u)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove crontab")
	}
	c.log.Info().Str("user", u.Name).Msg("crontab removed")
	return c.signal(ctx, u)
}

// Replace installs file, or standard input for "-", as u's crontab once it
// parses.
func (c *Client) Replace(ctx context.Context, u users.User, file string) error {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(c.in)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryUsage, "cannot read "+file)
	}

	if err := vixie.Validate(bytes.NewReader(data), vixie.Options{}); err != nil {
		return cronerr.Wrap(err, cronerr.CategoryConfig, "crontab not installed")
	}
	if err := c.install(u, data); err != nil {
		return err
	}
	return c.signal(ctx, u)
}

// Edit copies u's crontab to a scratch file, opens the editor, and installs
// the result once it parses. A broken edit can be retried or abandoned;
// abandoning leaves the installed crontab untouched.
func (c *Client) Edit(ctx context.Context, u users.User) error {
	current, err := os.ReadFile(c.installed(u))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "read crontab")
	}

	scratch := filepath.Join(c.paths.TmpDir, "crontab."+strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(scratch, current, 0o600); err != nil {
		return errors.Wrap(err, "create scratch file")
	}
	defer os.Remove(scratch)

	for {
		if err := c.editor(ctx, scratch); err != nil {
			return errors.Wrap(err, "editor")
		}
		edited, err := os.ReadFile(scratch)
		if err != nil {
			return errors.Wrap(err, "read scratch file")
		}

		verr := vixie.Validate(bytes.NewReader(edited), vixie.Options{})
		if verr == nil {
			if err := c.install(u, edited); err != nil {
				return err
			}
			return c.signal(ctx, u)
		}

		fmt.Fprintf(c.stderr, "%v\n", verr)
		if !c.confirm("Edit again? (y/n) ") {
			fmt.Fprintln(c.stderr, "Crontab not changed")
			return nil
		}
	}
}

func (c *Client) confirm(prompt string) bool {
	for {
		fmt.Fprint(c.stderr, prompt)
		line, err := c.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return false
		}
	}
}

// install replaces u's crontab through a rename in the spool directory.
func (c *Client) install(u users.User, data []byte) error {
	tmp, err := os.CreateTemp(c.paths.SpoolDir, "."+u.Name+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary crontab")
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temporary crontab")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temporary crontab")
	}
	if os.Geteuid() == 0 {
		if err := tmp.Chown(int(u.UID), int(u.GID)); err != nil {
			tmp.Close()
			return errors.Wrap(err, "chown temporary crontab")
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary crontab")
	}
	if err := os.Rename(name, c.installed(u)); err != nil {
		return errors.Wrap(err, "install crontab")
	}
	c.log.Info().Str("user", u.Name).Msg("crontab installed")
	return nil
}

func (c *Client) signal(ctx context.Context, u users.User) error {
	err := c.notify(ctx, c.paths.Socket, u.Name)
	if errors.Is(err, control.ErrNotRunning) {
		fmt.Fprintln(c.stderr, "Warning: a cron daemon is not running.")
		return nil
	}
	return err
}

// RunEditor opens path in $VISUAL, $EDITOR or vi, attached to the terminal.
func RunEditor(ctx context.Context, path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", editor+` "$1"`, "sh", path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

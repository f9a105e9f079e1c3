// Package daemon runs the scheduler process: it loads the job sources, owns
// the executor, serves the control socket and cleans up on shutdown.
package daemon

import (
	"github.com/kaiserkarel/mcron/loader"
)

// Mode selects the personality of the daemon.
type Mode int

const (
	// ModeCron is the system daemon: spool directory, system crontab,
	// control socket and pid file.
	ModeCron Mode = iota
	// ModeMcron runs the invoking user's own job files in the foreground.
	ModeMcron
)

func (m Mode) String() string {
	switch m {
	case ModeCron:
		return "cron"
	case ModeMcron:
		return "mcron"
	}
	return "unknown"
}

// Defaults for ModeCron.
const (
	DefaultSpoolDir      = "/var/cron/tabs"
	DefaultSocket        = "/var/cron/socket"
	DefaultPIDFile       = "/var/run/cron.pid"
	DefaultSystemCrontab = "/etc/crontab"
)

// Config is resolved once at startup and never changed afterwards.
type Config struct {
	Mode Mode

	SpoolDir      string
	SystemCrontab string
	Socket        string
	PIDFile       string

	// NoEtc disables the periodic system crontab check.
	NoEtc bool

	// RequireRoot refuses to start ModeCron for other users.
	RequireRoot bool

	// Schedule, when positive, prints that many upcoming activations and
	// returns without running anything.
	Schedule int

	// Files are explicit ModeMcron sources; "-" is standard input read in
	// the Stdin dialect. Empty means the personal directories.
	Files []string
	Stdin loader.Dialect

	// Watch reloads ModeMcron sources when the personal directories change.
	Watch bool

	Shell string
}

// WithDefaults fills unset paths.
func (c Config) WithDefaults() Config {
	if c.SpoolDir == "" {
		c.SpoolDir = DefaultSpoolDir
	}
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.PIDFile == "" {
		c.PIDFile = DefaultPIDFile
	}
	if c.SystemCrontab == "" {
		c.SystemCrontab = DefaultSystemCrontab
	}
	return c
}

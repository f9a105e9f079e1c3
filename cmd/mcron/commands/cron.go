package commands

import (
	"github.com/kaiserkarel/mcron/daemon"
)

// CronCmd implements the 'cron' command.
type CronCmd struct {
	NoEtc       bool   `name:"noetc" short:"n" help:"Do not watch the system crontab for changes"`
	Schedule    int    `short:"s" placeholder:"N" help:"Print the next N activations and exit"`
	SpoolDir    string `name:"spool-dir" help:"Directory holding the per-user crontabs"`
	Socket      string `help:"Control socket path"`
	PIDFile     string `name:"pid-file" help:"PID file path"`
	RequireRoot bool   `name:"require-root" default:"true" negatable:"" help:"Refuse to run unless root"`
}

func (c *CronCmd) Run(g *Global, _ *CLI) error {
	paths := g.Config.Paths
	cfg := daemon.Config{
		Mode:          daemon.ModeCron,
		SpoolDir:      or(c.SpoolDir, paths.SpoolDir),
		SystemCrontab: paths.SystemCrontab,
		Socket:        or(c.Socket, paths.Socket),
		PIDFile:       or(c.PIDFile, paths.PIDFile),
		NoEtc:         c.NoEtc,
		RequireRoot:   c.RequireRoot,
		Schedule:      c.Schedule,
	}
	return runDaemon(g, cfg)
}

func or(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

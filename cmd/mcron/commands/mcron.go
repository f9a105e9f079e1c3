package commands

import (
	"github.com/kaiserkarel/mcron/daemon"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
	"github.com/kaiserkarel/mcron/loader"
)

// McronCmd implements the 'mcron' command.
type McronCmd struct {
	Schedule int      `short:"s" placeholder:"N" help:"Print the next N activations and exit"`
	Stdin    string   `short:"i" default:"yaml" placeholder:"DIALECT" help:"Dialect of jobs read from '-' (vixie, yaml)"`
	Watch    bool     `short:"w" help:"Reload when the personal cron directories change"`
	Files    []string `arg:"" optional:"" help:"Job files; '-' reads standard input. Defaults to ~/.cron and ~/.config/cron"`
}

func (m *McronCmd) Run(g *Global, _ *CLI) error {
	dialect, err := loader.ParseDialect(m.Stdin)
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryUsage, "--stdin")
	}

	self, err := users.Current()
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryUserSource, "look up invoking user")
	}

	cfg := daemon.Config{
		Mode:     daemon.ModeMcron,
		Schedule: m.Schedule,
		Files:    m.Files,
		Stdin:    dialect,
		Watch:    m.Watch,
	}
	return runDaemon(g, cfg, daemon.WithOwner(self.Name))
}

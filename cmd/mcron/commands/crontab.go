package commands

import (
	"github.com/kaiserkarel/mcron/crontab"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
)

// CrontabCmd implements the 'crontab' command.
type CrontabCmd struct {
	User   string `short:"u" placeholder:"USER" help:"Operate on USER's crontab (root only)"`
	Edit   bool   `short:"e" help:"Edit the crontab"`
	List   bool   `short:"l" help:"Print the crontab"`
	Remove bool   `short:"r" help:"Remove the crontab"`
	File   string `arg:"" optional:"" help:"Replace the crontab with FILE; '-' reads standard input"`
}

func (c *CrontabCmd) Run(g *Global, _ *CLI) error {
	req, err := crontab.NewRequest(c.Edit, c.List, c.Remove, c.File, c.User)
	if err != nil {
		return err
	}

	invoker, err := users.Current()
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryInternal, "look up invoking user")
	}

	ctx, cancel := signalContext()
	defer cancel()

	paths := g.Config.Paths
	client := crontab.New(crontab.Paths{
		SpoolDir:  paths.SpoolDir,
		Socket:    paths.Socket,
		AllowFile: paths.AllowFile,
		DenyFile:  paths.DenyFile,
		TmpDir:    paths.TmpDir,
	}, invoker, users.System{},
		crontab.WithLogger(g.Log().With().Str("component", "crontab").Logger()),
	)
	return client.Run(ctx, req)
}

package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/kaiserkarel/mcron/cmd/mcron/commands"
	"github.com/kaiserkarel/mcron/internal/cronerr"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}

	parser, err := kong.New(cli,
		kong.Name("mcron"),
		kong.Description("Run commands on a schedule."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(global),
	)
	if err != nil {
		panic(err)
	}

	fail := func(err error) {
		cronerr.NewCLIAdapter("mcron", global.Log()).
			OnExit(func() { _ = global.Close() }).
			HandleError(err)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		if _, ok := cronerr.AsClassified(err); !ok {
			err = cronerr.Wrap(err, cronerr.CategoryUsage, "invalid invocation")
		}
		fail(err)
	}

	if err := ctx.Run(cli); err != nil {
		fail(err)
	}
	_ = global.Close()
}

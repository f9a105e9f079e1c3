package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit  int    `short:"n" default:"20" help:"Number of runs to show"`
	List   string `short:"l" placeholder:"LIST" help:"Only runs from LIST (system, user:NAME)"`
	Output bool   `short:"o" help:"Also print captured output"`
}

func (h *HistoryCmd) Run(g *Global, _ *CLI) error {
	path := g.Config.History.Path
	if path == "" {
		return cronerr.New(cronerr.CategoryConfig, "history.path is not configured")
	}
	if h.Limit <= 0 {
		return cronerr.Newf(cronerr.CategoryUsage, "invalid limit %d", h.Limit)
	}

	ctx := context.Background()
	store, err := history.Open(ctx, path)
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryConfig, "open run history")
	}
	defer store.Close()

	runs, err := store.Recent(ctx, h.Limit, h.List)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs, h.Output)
}

func printRuns(w io.Writer, runs []history.Run, output bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tLIST\tDURATION\tRESULT\tJOB")
	for _, r := range runs {
		result := "ok"
		if r.Failed() {
			result = r.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Started.Format(time.DateTime), r.List,
			r.Ended.Sub(r.Started).Round(time.Millisecond), result, r.Description)
		if output && len(r.Output) > 0 {
			if err := tw.Flush(); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\n", r.Output); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/kaiserkarel/mcron/daemon"
	"github.com/kaiserkarel/mcron/internal/config"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/history"
	"github.com/kaiserkarel/mcron/internal/logx"
	"github.com/kaiserkarel/mcron/internal/metrics"
)

// pruneInterval is how often the run log is trimmed to its retention.
const pruneInterval = time.Hour

// Global is shared by all subcommands once flags are applied.
type Global struct {
	Logger *logx.Logger
	Config config.Config
}

// Log returns the root logger, or a disabled one before setup.
func (g *Global) Log() zerolog.Logger {
	if g == nil || g.Logger == nil {
		return zerolog.Nop()
	}
	return g.Logger.Logger
}

// Close releases the log file.
func (g *Global) Close() error {
	if g == nil || g.Logger == nil {
		return nil
	}
	return g.Logger.Close()
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" env:"MCRON_CONFIG" help:"Configuration file path" placeholder:"PATH"`
	Verbose   bool             `short:"v" help:"Enable debug logging"`
	LogLevel  string           `name:"log-level" env:"MCRON_LOG_LEVEL" help:"Log level (trace, debug, info, warn, error)"`
	LogFormat string           `name:"log-format" env:"MCRON_LOG_FORMAT" help:"Log format (console, json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Cron    CronCmd    `cmd:"" help:"Run the system daemon for the spool directory and the system crontab"`
	Mcron   McronCmd   `cmd:"" help:"Run your own job files in the foreground"`
	Crontab CrontabCmd `cmd:"" help:"Install, edit, list or remove a crontab"`
	History HistoryCmd `cmd:"" help:"Show recently recorded job runs"`
}

// AfterApply loads the configuration file and sets up logging once.
func (c *CLI) AfterApply(g *Global) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryConfig, "load configuration")
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.Verbose {
		cfg.Log.Level = "debug"
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}

	logger, err := logx.New(cfg.Log, os.Stderr)
	if err != nil {
		return cronerr.Wrap(err, cronerr.CategoryConfig, "set up logging")
	}
	g.Logger = logger
	g.Config = cfg
	return nil
}

// signalContext is cancelled by the signals that stop the daemon and the
// interactive client.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
}

// runDaemon wires the optional metrics endpoint and run log into d and runs
// it until a signal arrives.
func runDaemon(g *Global, cfg daemon.Config, opts ...daemon.Option) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := g.Log()
	opts = append([]daemon.Option{daemon.WithLogger(log)}, opts...)
	if cfg.Shell == "" {
		cfg.Shell = g.Config.Shell
	}

	// Scheduling dry runs never fire anything.
	if cfg.Schedule <= 0 {
		if addr := g.Config.Metrics.Address; addr != "" {
			reg := prom.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metricsLog := log.With().Str("component", "metrics").Logger()
			opts = append(opts,
				daemon.WithRecorder(metrics.NewPrometheusRecorder(reg)),
				daemon.WithService(func(ctx context.Context) error {
					return metrics.Serve(ctx, addr, reg, metricsLog)
				}),
			)
		}

		if path := g.Config.History.Path; path != "" {
			store, err := history.Open(ctx, path)
			if err != nil {
				return cronerr.Wrap(err, cronerr.CategoryConfig, "open run history")
			}
			defer store.Close()

			opts = append(opts, daemon.WithHistory(store))
			if retention := g.Config.History.Retention; retention > 0 {
				historyLog := log.With().Str("component", "history").Logger()
				opts = append(opts, daemon.WithService(func(ctx context.Context) error {
					return prune(ctx, store, retention, historyLog)
				}))
			}
		}
	}

	log.Info().Stringer("mode", cfg.Mode).Msg("starting")
	err := daemon.New(cfg, opts...).Run(ctx)
	if err == nil {
		log.Info().Stringer("mode", cfg.Mode).Msg("stopped")
	}
	return err
}

// prune trims the run log now and every pruneInterval until ctx ends.
func prune(ctx context.Context, store *history.Store, retention time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn().Err(err).Msg("prune run history")
		} else if n > 0 {
			log.Debug().Int64("removed", n).Msg("pruned run history")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

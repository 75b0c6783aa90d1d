package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/wardenbot/warden/filter"
	"github.com/wardenbot/warden/hierarchy"
	"github.com/wardenbot/warden/metrics"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/names"
)

var app = cli.Command{
	Name:  "warden",
	Usage: "Discord moderation bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:  "show",
			Usage: "Render cases from the local ledger without connecting",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "community",
					Usage:    "Community ID whose cases to render",
					Required: true,
				},
				&cli.IntFlag{
					Name:  "n",
					Usage: "Case number to render; 0 renders all",
				},
			},
			Action: cliShow,
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
	}
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("couldn't open config file: %w", err)
	}
	cfg, _, err := Load(ctx, r)
	if err != nil {
		return fmt.Errorf("couldn't load config: %w", err)
	}
	r.Close()

	w := New(runtime.GOMAXPROCS(0))
	w.owner = cfg.Owner
	w.rank = &hierarchy.Checker{Owner: cfg.Owner.ID}

	store, filterDB, namesDB, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := filter.Init(ctx, filterDB); err != nil {
		return err
	}
	if w.filter, err = filter.Open(ctx, filterDB); err != nil {
		return err
	}
	if err := names.Init(ctx, namesDB); err != nil {
		return err
	}
	if w.names, err = names.Open(ctx, namesDB); err != nil {
		return err
	}
	if w.settings, err = openSettings(cfg.DB.Settings); err != nil {
		return err
	}

	token, err := os.ReadFile(cfg.Discord.TokenFile)
	if err != nil {
		return fmt.Errorf("couldn't read bot token: %w", err)
	}
	if err := w.NewDiscord(ctx, strings.TrimSpace(string(token))); err != nil {
		return err
	}
	if w.ledger, err = modlog.Open(ctx, store, w.client, slog.Default()); err != nil {
		return err
	}

	cms, err := cfg.communities()
	if err != nil {
		return err
	}
	w.settings.Apply(cms)
	for id, cm := range cms {
		w.communities.Store(id, cm)
	}

	return w.Run(ctx, cfg.HTTP.Listen)
}

func cliShow(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("couldn't open config file: %w", err)
	}
	cfg, _, err := Load(ctx, r)
	if err != nil {
		return fmt.Errorf("couldn't load config: %w", err)
	}
	r.Close()
	store, _, _, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	all, err := store.Load(ctx)
	if err != nil {
		return err
	}
	community := cmd.String("community")
	cases := all[community]
	if len(cases) == 0 {
		return fmt.Errorf("no cases for %s", community)
	}
	prefix := cfg.Global.Prefix
	if prefix == "" {
		prefix = "!"
	}
	if n := int(cmd.Int("n")); n > 0 {
		c := cases[n]
		if c == nil {
			return fmt.Errorf("no case #%d for %s", n, community)
		}
		fmt.Println(modlog.Message(c, prefix))
		return nil
	}
	for _, n := range slices.Sorted(maps.Keys(cases)) {
		fmt.Println(modlog.Message(cases[n], prefix))
		fmt.Println()
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() metrics.Metrics {
	return metrics.Metrics{
		EventsCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "gateway",
					Name:      "events",
					Help:      "Number of gateway events received, by type.",
				},
				[]string{"type"},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "commands",
					Name:      "invocations",
					Help:      "Number of command invocations dispatched, by command name.",
				},
				[]string{"name"},
			),
		),
		ActionsCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "mod",
					Name:      "actions",
					Help:      "Number of moderation actions the bot performed, by kind.",
				},
				[]string{"action"},
			),
		),
		CasesCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "modlog",
					Name:      "cases",
					Help:      "Number of cases recorded in the ledger.",
				},
			),
		),
		DedupSuppressed: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "modlog",
					Name:      "dedup_suppressed",
					Help:      "Number of ban events skipped because the bot caused them.",
				},
			),
		),
		FilteredCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "warden",
					Subsystem: "filter",
					Name:      "deleted",
					Help:      "Number of messages deleted by the word filter.",
				},
			),
		),
		AmendLatency: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 10},
					Namespace: "warden",
					Subsystem: "modlog",
					Name:      "amend_latency",
					Help:      "How long reason amendments take in seconds.",
				},
			),
		),
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/dedup"
	"github.com/wardenbot/warden/filter"
	"github.com/wardenbot/warden/hierarchy"
	"github.com/wardenbot/warden/metrics"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/names"
	"github.com/wardenbot/warden/platform"
	"github.com/wardenbot/warden/syncmap"
)

// Warden is the overall state of the bot.
type Warden struct {
	// owner is metadata about the bot owner.
	owner Owner
	// communities are the communities, keyed by platform ID.
	communities *syncmap.Map[string, *community.Community]
	// ledger is the moderation case ledger.
	ledger *modlog.Ledger
	// guard suppresses duplicate cases for bot-caused events.
	guard *dedup.Guard
	// rank decides who may act on whom.
	rank *hierarchy.Checker
	// filter is the filtered word list.
	filter *filter.List
	// names is the name history.
	names *names.History
	// settings persists runtime settings changes.
	settings *settingsFile
	// client is the platform boundary used by commands and the ledger.
	client platform.Client
	// session is the underlying Discord session. It is the same
	// connection client wraps.
	session *discordgo.Session
	// works is the worker pool for event handling.
	works chan chan func(context.Context)
	// metrics are a collection of custom domain metrics.
	metrics metrics.Metrics
}

// New creates a new Warden with the given worker pool size.
func New(poolSize int) *Warden {
	return &Warden{
		communities: syncmap.New[string, *community.Community](),
		guard:       dedup.New(),
		works:       make(chan chan func(context.Context), poolSize),
		metrics:     newMetrics(),
	}
}

// Run runs the bot until the context is canceled or a component fails.
func (w *Warden) Run(ctx context.Context, listen string) error {
	group, ctx := errgroup.WithContext(ctx)
	if listen != "" {
		mux := http.NewServeMux()
		group.Go(func() error {
			return w.api(ctx, listen, mux, w.metrics.Collectors())
		})
	}
	group.Go(func() error {
		if err := w.session.Open(); err != nil {
			return err
		}
		slog.InfoContext(ctx, "connected", slog.String("as", w.session.State.User.String()))
		<-ctx.Done()
		return w.session.Close()
	})
	err := group.Wait()
	if err == context.Canceled {
		// The first error being context canceled means we are shutting
		// down normally in response to a sigint.
		err = nil
	}
	return err
}

// enqueue hands work to the pool so event handlers never block the
// gateway loop.
func (w *Warden) enqueue(ctx context.Context, work func(context.Context)) {
	var ch chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case ch = <-w.works:
	default:
		ch = make(chan func(context.Context), 1)
		go worker(ctx, w.works, ch)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case ch <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}

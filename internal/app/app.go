// Package app wires the cache components into a runnable client core:
// registry, reconciler, session controller, signed-URL cache, archive,
// sweeper, and the local debug server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"chatfeed/internal/sweep"
	"chatfeed/pkg/archive"
	"chatfeed/pkg/config"
	"chatfeed/pkg/events"
	"chatfeed/pkg/fetch"
	"chatfeed/pkg/intake"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/models"
	"chatfeed/pkg/pagestore"
	"chatfeed/pkg/reconcile"
	"chatfeed/pkg/session"
	"chatfeed/pkg/signedurl"
)

// App encapsulates the client core and its lifecycle.
type App struct {
	cfg config.Config

	registry   *pagestore.Registry
	reconciler *reconcile.Reconciler
	sessions   *session.Controller
	urls       *signedurl.Cache
	client     *fetch.Client
	queue      *intake.Queue

	srv         *http.Server
	sweepCancel context.CancelFunc
}

// New validates the config and builds the component graph. It opens the
// archive when enabled but starts no goroutines; call Run for those.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var sink reconcile.Sink
	if cfg.Archive.Enabled {
		if err := archive.Open(cfg.Archive.Path); err != nil {
			return nil, fmt.Errorf("failed to open archive at %s: %w", cfg.Archive.Path, err)
		}
		sink = archive.Tee{}
	}

	client := fetch.NewClient(fetch.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.APITimeout(),
		RPS:     cfg.API.RPS,
		Burst:   cfg.API.Burst,
	})

	reg := pagestore.NewRegistry(cfg.Cache.MaxPagesPerKey)
	opts := []reconcile.Option{}
	if sink != nil {
		opts = append(opts, reconcile.WithSink(sink))
	}

	a := &App{
		cfg:        cfg,
		registry:   reg,
		reconciler: reconcile.New(reg, cfg.Identity.UserID, opts...),
		sessions:   session.New(reg, client, cfg.Cache.PageSize),
		urls:       signedurl.New(client, cfg.RefreshBuffer()),
		client:     client,
		queue:      intake.NewQueue(cfg.Cache.IntakeCapacity),
	}
	return a, nil
}

// Registry exposes the page store registry (read surface).
func (a *App) Registry() *pagestore.Registry { return a.registry }

// Sessions exposes the session controller.
func (a *App) Sessions() *session.Controller { return a.sessions }

// URLs exposes the signed-URL cache.
func (a *App) URLs() *signedurl.Cache { return a.urls }

// Apply feeds one event (push or optimistic) into the reconciler.
func (a *App) Apply(ev events.Event) { a.reconciler.Apply(ev) }

// Ingest enqueues one raw wire frame for the intake worker. The transport
// calls this instead of Apply so frame decoding and store mutation happen
// off its goroutine, in arrival order.
func (a *App) Ingest(raw []byte) error { return a.queue.TryEnqueue(raw) }

// applyFrame is the intake worker handler: decode, then Apply.
func (a *App) applyFrame(raw []byte) error {
	ev, err := events.DecodeFrame(raw)
	if err != nil {
		logger.Warn("intake_bad_frame", "error", err)
		return err
	}
	a.reconciler.Apply(ev)
	return nil
}

// OpenChannel loads a channel feed: from the network when reachable,
// otherwise seeded from the archive so the client renders something
// offline. The archive seed carries no cursors; a later JumpToLatest
// replaces it with a real page.
func (a *App) OpenChannel(ctx context.Context, key string) error {
	err := a.sessions.Open(ctx, key)
	if err == nil {
		return nil
	}
	if !a.cfg.Archive.Enabled {
		return err
	}
	seed, serr := archive.SeedPage(key, a.cfg.Cache.PageSize)
	if serr != nil || seed == nil {
		return err
	}
	st := a.registry.Ensure(key)
	st.Reset(seed)
	logger.Warn("channel_seeded_offline", "key", key, "count", len(seed.Messages), "fetch_error", err)
	return nil
}

// Feed returns the merged view plus summary for one cache key.
func (a *App) Feed(key string) (pagestore.View, models.ChannelSummary, bool) {
	st, ok := a.registry.Get(key)
	if !ok {
		return pagestore.View{}, models.ChannelSummary{}, false
	}
	sum, _ := a.registry.Summary(key)
	return st.Read(), sum, true
}

// Run starts the intake worker, the sweeper, and the debug server, then
// blocks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	go a.queue.RunWorker(ctx, a.applyFrame)

	if a.cfg.Sweep.Enabled {
		cancel, err := sweep.Start(ctx, a.cfg.Sweep.Cron, a.urls, a.registry)
		if err != nil {
			return err
		}
		a.sweepCancel = cancel
	}

	var errCh <-chan error
	if a.cfg.Debug.Addr != "" {
		errCh = a.startHTTP(ctx)
	}

	defer a.shutdown()
	if errCh == nil {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) shutdown() {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.srv != nil {
		_ = a.srv.Close()
	}
	if a.cfg.Archive.Enabled {
		if err := archive.Close(); err != nil {
			logger.Error("archive_close_failed", "error", err)
		}
	}
}

package app

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatfeed/pkg/logger"
	"chatfeed/pkg/viewmodel"
)

// startHTTP serves the local debug surface: a rendered feed per cache key,
// a health probe, and Prometheus metrics. Loopback-only by convention;
// nothing here is authenticated.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	r := mux.NewRouter()
	r.HandleFunc("/debug/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/debug/feeds/{key}", a.handleFeed).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	a.srv = &http.Server{Addr: a.cfg.Debug.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("debug_server_listening", "addr", a.cfg.Debug.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		_ = a.srv.Close()
	}()
	return errCh
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleFeed dumps the merged view for a cache key the way a renderer
// would consume it: session mode, cursors, summary, and built items.
func (a *App) handleFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	key := mux.Vars(r)["key"]
	view, sum, ok := a.Feed(key)
	if !ok {
		http.Error(w, `{"error":"unknown key"}`, http.StatusNotFound)
		return
	}
	items := viewmodel.Build(view.Messages, sum.LastReadID, sum.UnreadCount)
	out := struct {
		Key     string           `json:"key"`
		Mode    string           `json:"mode"`
		Anchor  string           `json:"anchor,omitempty"`
		Summary any              `json:"summary"`
		Cursors any              `json:"cursors"`
		Items   []viewmodel.Item `json:"items"`
	}{
		Key:     key,
		Mode:    string(a.sessions.Mode(key)),
		Anchor:  a.sessions.Anchor(key),
		Summary: sum,
		Cursors: view.Cursors,
		Items:   items,
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logger.Error("debug_feed_encode_failed", "key", key, "error", err)
	}
}

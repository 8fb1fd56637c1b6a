// Package sweep runs periodic cache maintenance on a cron schedule:
// purging stale signed-URL entries and logging store/archive gauges. The
// cache stays correct without it; the sweeps only bound memory.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatfeed/pkg/archive"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/pagestore"
	"chatfeed/pkg/signedurl"
)

// Start launches the sweep scheduler for the given cron expression and
// returns a cancel func. An invalid expression fails fast.
func Start(ctx context.Context, cronExpr string, urls *signedurl.Cache, reg *pagestore.Registry) (context.CancelFunc, error) {
	if cronExpr == "" {
		// default hourly
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, urls, reg)
	logger.Info("sweep_scheduler_started", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick with gronx and sleeps until then,
// which supports full cron syntax instead of a coarse interval ticker.
func runScheduler(ctx context.Context, cronExpr string, urls *signedurl.Cache, reg *pagestore.Registry) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			RunOnce(urls, reg)
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Exposed so tests and debug handlers can
// trigger it on demand.
func RunOnce(urls *signedurl.Cache, reg *pagestore.Registry) {
	purged := 0
	if urls != nil {
		purged = urls.PurgeStale()
	}
	stores := 0
	if reg != nil {
		stores = reg.Len()
	}
	var diskBytes uint64
	if archive.Ready() {
		diskBytes = archive.DiskUsage()
	}
	logger.Info("sweep_completed", "urls_purged", purged, "stores", stores, "archive_bytes", diskBytes)
}

// Package forecast combines the fixed-horizon historical forecasts with the
// latest forecast run of each site into the series shown to users.
package forecast

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

// Store is the forecast storage the engine reads from
type Store interface {
	ForecastsForHorizon(ctx context.Context, siteUUIDs []uuid.UUID, startUTC, endUTC time.Time, horizonMinutes int) ([]database.ForecastRow, error)
	LatestForecasts(ctx context.Context, siteUUIDs []uuid.UUID, startUTC *time.Time) ([]database.ForecastRow, error)
}

// Engine merges the historical and forward forecast slices
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a new forecast engine
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to end the historical window
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Result holds one of the two output shapes
type Result struct {
	Compact  bool
	Forecast []protocol.Forecast
	ByTime   []protocol.OneDatetimeManyForecasts
}

// Payload returns the populated shape
func (r Result) Payload() any {
	if r.Compact {
		return r.ByTime
	}
	return r.Forecast
}

// Rows returns the historical slice (values at horizonMinutes from startUTC
// until now) followed by the forward slice (latest run of each site from
// startUTC). Either fetch failing fails the whole call.
func (e *Engine) Rows(ctx context.Context, siteUUIDs []uuid.UUID, startUTC time.Time, horizonMinutes int) ([]database.ForecastRow, error) {
	endUTC := e.now().UTC()

	var past, future []database.ForecastRow
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := e.store.ForecastsForHorizon(gctx, siteUUIDs, startUTC, endUTC, horizonMinutes)
		if err != nil {
			return apperr.Storage("forecasts_for_horizon", err)
		}
		past = rows
		return nil
	})

	g.Go(func() error {
		rows, err := e.store.LatestForecasts(gctx, siteUUIDs, &startUTC)
		if err != nil {
			return apperr.Storage("latest_forecasts", err)
		}
		future = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("found past forecasts", "count", len(past))
	e.logger.Debug("found future forecasts", "count", len(future))

	if n := countOverlap(past, future); n > 0 {
		e.logger.Warn("historical and forward forecasts overlap",
			"overlapping_values", n,
			"horizon_minutes", horizonMinutes,
			"start_utc", startUTC)
	}

	merged := make([]database.ForecastRow, 0, len(past)+len(future))
	merged = append(merged, past...)
	merged = append(merged, future...)
	return merged, nil
}

// GetForecastsBySites returns the merged forecasts in the requested shape
func (e *Engine) GetForecastsBySites(ctx context.Context, siteUUIDs []uuid.UUID, startUTC time.Time, horizonMinutes int, compact bool) (Result, error) {
	e.logger.Info("getting forecast", "sites", len(siteUUIDs), "horizon_minutes", horizonMinutes, "compact", compact)

	rows, err := e.Rows(ctx, siteUUIDs, startUTC, horizonMinutes)
	if err != nil {
		return Result{}, err
	}

	if compact {
		return Result{Compact: true, ByTime: protocol.ForecastRowsToCompact(rows)}, nil
	}
	return Result{Forecast: protocol.ForecastRowsToVerbose(rows)}, nil
}

type targetKey struct {
	site  uuid.UUID
	start int64
}

// countOverlap counts forward values whose (site, target time) also appears in
// the historical slice.
func countOverlap(past, future []database.ForecastRow) int {
	if len(past) == 0 || len(future) == 0 {
		return 0
	}

	seen := make(map[targetKey]struct{}, len(past))
	for _, r := range past {
		seen[targetKey{r.Forecast.SiteUUID, r.Value.StartUTC.UnixNano()}] = struct{}{}
	}

	n := 0
	for _, r := range future {
		if _, ok := seen[targetKey{r.Forecast.SiteUUID, r.Value.StartUTC.UnixNano()}]; ok {
			n++
		}
	}
	return n
}

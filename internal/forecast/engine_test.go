package forecast

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
)

// memStore applies the same filters, ordering and one-row-per-group picks as
// the Postgres queries, over runs held in memory.
type memStore struct {
	runs       []memRun
	horizonErr error
	latestErr  error
}

type memRun struct {
	run    database.ForecastRun
	values []database.ForecastValue
}

func (m *memStore) add(site uuid.UUID, id uuid.UUID, issued time.Time, values ...database.ForecastValue) {
	m.runs = append(m.runs, memRun{
		run:    database.ForecastRun{ForecastUUID: id, SiteUUID: site, TimestampUTC: issued, ForecastVersion: "1.0.0"},
		values: values,
	})
}

func value(issued time.Time, horizon int, kw float64) database.ForecastValue {
	start := issued.Add(time.Duration(horizon) * time.Minute)
	return database.ForecastValue{
		ForecastValueUUID: uuid.New(),
		StartUTC:          start,
		EndUTC:            start.Add(15 * time.Minute),
		HorizonMinutes:    horizon,
		ForecastPowerKW:   kw,
	}
}

func inSites(sites []uuid.UUID, s uuid.UUID) bool {
	for _, id := range sites {
		if id == s {
			return true
		}
	}
	return false
}

func (m *memStore) ForecastsForHorizon(_ context.Context, sites []uuid.UUID, start, end time.Time, horizon int) ([]database.ForecastRow, error) {
	if m.horizonErr != nil {
		return nil, m.horizonErr
	}
	runStart := start.Add(-time.Duration(horizon) * time.Minute)

	var rows []database.ForecastRow
	for _, r := range m.runs {
		if !inSites(sites, r.run.SiteUUID) || r.run.TimestampUTC.Before(runStart) || !r.run.TimestampUTC.Before(end) {
			continue
		}
		for _, v := range r.values {
			if v.HorizonMinutes == horizon && !v.StartUTC.Before(start) && v.StartUTC.Before(end) {
				rows = append(rows, database.ForecastRow{Forecast: r.run, Value: v})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Forecast, rows[j].Forecast
		if a.SiteUUID != b.SiteUUID {
			return a.SiteUUID.String() < b.SiteUUID.String()
		}
		if !a.TimestampUTC.Equal(b.TimestampUTC) {
			return a.TimestampUTC.Before(b.TimestampUTC)
		}
		if a.ForecastUUID != b.ForecastUUID {
			return a.ForecastUUID.String() < b.ForecastUUID.String()
		}
		return rows[i].Value.StartUTC.Before(rows[j].Value.StartUTC)
	})

	type key struct {
		site uuid.UUID
		ts   int64
	}
	seen := make(map[key]bool)
	var out []database.ForecastRow
	for _, r := range rows {
		k := key{r.Forecast.SiteUUID, r.Forecast.TimestampUTC.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) LatestForecasts(_ context.Context, sites []uuid.UUID, start *time.Time) ([]database.ForecastRow, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}

	latest := make(map[uuid.UUID]memRun)
	for _, r := range m.runs {
		if !inSites(sites, r.run.SiteUUID) {
			continue
		}
		cur, ok := latest[r.run.SiteUUID]
		if !ok ||
			r.run.TimestampUTC.After(cur.run.TimestampUTC) ||
			(r.run.TimestampUTC.Equal(cur.run.TimestampUTC) && r.run.ForecastUUID.String() < cur.run.ForecastUUID.String()) {
			latest[r.run.SiteUUID] = r
		}
	}

	var rows []database.ForecastRow
	for _, r := range latest {
		for _, v := range r.values {
			if start == nil || !v.StartUTC.Before(*start) {
				rows = append(rows, database.ForecastRow{Forecast: r.run, Value: v})
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Forecast.TimestampUTC.Equal(b.Forecast.TimestampUTC) {
			return a.Forecast.TimestampUTC.Before(b.Forecast.TimestampUTC)
		}
		if a.Forecast.SiteUUID != b.Forecast.SiteUUID {
			return a.Forecast.SiteUUID.String() < b.Forecast.SiteUUID.String()
		}
		return a.Value.StartUTC.Before(b.Value.StartUTC)
	})
	return rows, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var (
	t0   = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	t1   = t0.Add(3 * time.Hour)
	lowA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	lowB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func TestRows_HistoricalThenForward(t *testing.T) {
	site := uuid.New()
	store := &memStore{}
	store.add(site, lowA, t0, value(t0, 30, 1.0))
	store.add(site, lowB, t1, value(t1, 60, 2.0))

	engine := NewEngine(store, discardLogger()).WithClock(fixedClock(t1.Add(120 * time.Minute)))

	rows, err := engine.Rows(context.Background(), []uuid.UUID{site}, t0, 30)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, lowA, rows[0].Forecast.ForecastUUID)
	assert.Equal(t, t0.Add(30*time.Minute), rows[0].Value.StartUTC)
	assert.Equal(t, lowB, rows[1].Forecast.ForecastUUID)
	assert.Equal(t, t1.Add(60*time.Minute), rows[1].Value.StartUTC)
}

func TestRows_OnlyRequestedHorizonInHistoricalSlice(t *testing.T) {
	site := uuid.New()
	store := &memStore{}
	store.add(site, uuid.New(), t0, value(t0, 30, 1), value(t0, 60, 2), value(t0, 90, 3))
	store.add(site, uuid.New(), t0.Add(15*time.Minute), value(t0.Add(15*time.Minute), 30, 4), value(t0.Add(15*time.Minute), 45, 5))
	// latest run, so the forward slice is only this one
	store.add(site, uuid.New(), t1)

	engine := NewEngine(store, discardLogger()).WithClock(fixedClock(t1))
	start := t0.Add(30 * time.Minute)

	past, err := store.ForecastsForHorizon(context.Background(), []uuid.UUID{site}, start, t1, 30)
	require.NoError(t, err)
	require.Len(t, past, 2)
	for _, r := range past {
		assert.Equal(t, 30, r.Value.HorizonMinutes)
		assert.False(t, r.Value.StartUTC.Before(start))
		assert.True(t, r.Value.StartUTC.Before(t1))
	}

	rows, err := engine.Rows(context.Background(), []uuid.UUID{site}, start, 30)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRows_DuplicateRunsContributeOnce(t *testing.T) {
	site := uuid.New()
	store := &memStore{}
	store.add(site, lowB, t0, value(t0, 30, 9))
	store.add(site, lowA, t0, value(t0, 30, 1))
	store.add(site, uuid.New(), t1)

	engine := NewEngine(store, discardLogger()).WithClock(fixedClock(t1))

	rows, err := engine.Rows(context.Background(), []uuid.UUID{site}, t0, 30)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, lowA, rows[0].Forecast.ForecastUUID)
	assert.Equal(t, 1.0, rows[0].Value.ForecastPowerKW)
}

func TestRows_LatestRunTieIsDeterministic(t *testing.T) {
	site := uuid.New()
	store := &memStore{}
	store.add(site, lowB, t1, value(t1, 60, 2))
	store.add(site, lowA, t1, value(t1, 60, 1))

	engine := NewEngine(store, discardLogger()).WithClock(fixedClock(t1))

	first, err := engine.Rows(context.Background(), []uuid.UUID{site}, t0, 30)
	require.NoError(t, err)
	require.Len(t, first, 1)

	for i := 0; i < 5; i++ {
		again, err := engine.Rows(context.Background(), []uuid.UUID{site}, t0, 30)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, lowA, first[0].Forecast.ForecastUUID)
}

func TestRows_StorageFailureFailsWholeRequest(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name  string
		store *memStore
	}{
		{"historical fails", &memStore{horizonErr: boom}},
		{"forward fails", &memStore{latestErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.store.add(uuid.New(), uuid.New(), t0, value(t0, 30, 1))
			engine := NewEngine(tt.store, discardLogger()).WithClock(fixedClock(t1))

			rows, err := engine.Rows(context.Background(), []uuid.UUID{uuid.New()}, t0, 30)
			require.Error(t, err)
			assert.Nil(t, rows)
			assert.True(t, apperr.Is(err, apperr.KindStorageFailure))
			assert.ErrorIs(t, err, boom)

			result, err := engine.GetForecastsBySites(context.Background(), []uuid.UUID{uuid.New()}, t0, 30, true)
			require.Error(t, err)
			assert.Nil(t, result.Payload())
		})
	}
}

func TestRows_OverlapIsLoggedNotFiltered(t *testing.T) {
	site := uuid.New()
	store := &memStore{}
	// Latest run issued inside the historical window: its horizon-30 value is
	// also in the historical slice.
	store.add(site, lowA, t0, value(t0, 30, 1), value(t0, 60, 2))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := NewEngine(store, logger).WithClock(fixedClock(t1))

	rows, err := engine.Rows(context.Background(), []uuid.UUID{site}, t0, 30)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Contains(t, buf.String(), "historical and forward forecasts overlap")
	assert.Contains(t, buf.String(), `"overlapping_values":1`)
}

func TestGetForecastsBySites_Shapes(t *testing.T) {
	siteA, siteB := uuid.New(), uuid.New()
	store := &memStore{}
	store.add(siteA, uuid.New(), t0, value(t0, 30, 1))
	store.add(siteB, uuid.New(), t0, value(t0, 30, 2))
	store.add(siteA, uuid.New(), t1, value(t1, 60, 3))
	store.add(siteB, uuid.New(), t1, value(t1, 60, 4))

	engine := NewEngine(store, discardLogger()).WithClock(fixedClock(t1.Add(time.Hour)))
	sites := []uuid.UUID{siteA, siteB}

	verbose, err := engine.GetForecastsBySites(context.Background(), sites, t0, 30, false)
	require.NoError(t, err)
	assert.False(t, verbose.Compact)
	assert.Len(t, verbose.Forecast, 4)

	compact, err := engine.GetForecastsBySites(context.Background(), sites, t0, 30, true)
	require.NoError(t, err)
	require.True(t, compact.Compact)
	require.Len(t, compact.ByTime, 2)
	assert.Equal(t, t0.Add(30*time.Minute), compact.ByTime[0].DatetimeUTC)
	assert.Equal(t, map[string]float64{siteA.String(): 1, siteB.String(): 2}, compact.ByTime[0].ForecastValues)
	assert.Equal(t, map[string]float64{siteA.String(): 3, siteB.String(): 4}, compact.ByTime[1].ForecastValues)
}

func TestCountOverlap(t *testing.T) {
	site := uuid.New()
	past := []database.ForecastRow{{Forecast: database.ForecastRun{SiteUUID: site}, Value: value(t0, 30, 1)}}
	future := []database.ForecastRow{
		{Forecast: database.ForecastRun{SiteUUID: site}, Value: value(t0, 30, 5)},
		{Forecast: database.ForecastRun{SiteUUID: uuid.New()}, Value: value(t0, 30, 5)},
	}

	assert.Equal(t, 1, countOverlap(past, future))
	assert.Equal(t, 0, countOverlap(nil, future))
}

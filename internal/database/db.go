package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/smukkama/pvsite-server/internal/metrics"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string, maxOpenConns, maxIdleConns int) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	return &DB{db}, nil
}

// New wraps an already opened connection pool
func New(db *sql.DB) *DB {
	return &DB{db}
}

// RunMigrations executes the embedded SQL migration files in order
func (db *DB) RunMigrations(ctx context.Context, logger *slog.Logger) error {
	return db.runMigrationsFS(ctx, logger, migrationFiles, "migrations")
}

func (db *DB) runMigrationsFS(ctx context.Context, logger *slog.Logger, fsys fs.FS, dir string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		logger.Info("running migration", "file", filename)

		content, err := fs.ReadFile(fsys, dir+"/"+filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	logger.Info("all migrations completed", "count", len(sqlFiles))
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

const forecastColumns = `
	f.forecast_uuid, f.site_uuid, f.timestamp_utc, f.forecast_version,
	fv.forecast_value_uuid, fv.start_utc, fv.end_utc, fv.horizon_minutes, fv.forecast_power_kw`

// DISTINCT ON keeps one row per (site, issuance time) when two runs were
// written with the same timestamp; forecast_uuid makes the pick deterministic.
const forecastsForHorizonQuery = `
	SELECT DISTINCT ON (f.site_uuid, f.timestamp_utc)` + forecastColumns + `
	FROM forecasts f
	JOIN forecast_values fv ON fv.forecast_uuid = f.forecast_uuid
	WHERE f.site_uuid = ANY($1::uuid[])
	  AND f.timestamp_utc >= $2
	  AND f.timestamp_utc < $3
	  AND fv.horizon_minutes = $4
	  AND fv.start_utc >= $5
	  AND fv.start_utc < $3
	ORDER BY f.site_uuid, f.timestamp_utc, f.forecast_uuid, fv.start_utc
`

// ForecastsForHorizon returns values at exactly horizonMinutes whose start
// lies in [startUTC, endUTC). Runs are filtered to [startUTC-horizon, endUTC),
// since a run issued before startUTC can still target a time inside the window.
func (db *DB) ForecastsForHorizon(ctx context.Context, siteUUIDs []uuid.UUID, startUTC, endUTC time.Time, horizonMinutes int) ([]ForecastRow, error) {
	runStart := startUTC.Add(-time.Duration(horizonMinutes) * time.Minute)

	queryStart := time.Now()
	rows, err := db.queryForecastRows(ctx, forecastsForHorizonQuery,
		pq.Array(uuidStrings(siteUUIDs)), runStart, endUTC, horizonMinutes, startUTC)
	metrics.RecordDBQuery("forecasts_for_horizon", time.Since(queryStart), len(rows), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get forecasts for horizon: %w", err)
	}

	return rows, nil
}

const latestForecastsQuery = `
	WITH latest AS (
		SELECT DISTINCT ON (site_uuid) forecast_uuid, site_uuid, timestamp_utc, forecast_version
		FROM forecasts
		WHERE site_uuid = ANY($1::uuid[])
		ORDER BY site_uuid, timestamp_utc DESC, forecast_uuid
	)
	SELECT` + forecastColumns + `
	FROM latest f
	JOIN forecast_values fv ON fv.forecast_uuid = f.forecast_uuid
	WHERE ($2::timestamptz IS NULL OR fv.start_utc >= $2)
	ORDER BY f.timestamp_utc, f.site_uuid, fv.start_utc
`

// LatestForecasts returns the values of the most recent run of each site.
// When startUTC is non-nil only values starting at or after it are returned.
func (db *DB) LatestForecasts(ctx context.Context, siteUUIDs []uuid.UUID, startUTC *time.Time) ([]ForecastRow, error) {
	var start sql.NullTime
	if startUTC != nil {
		start = sql.NullTime{Time: *startUTC, Valid: true}
	}

	queryStart := time.Now()
	rows, err := db.queryForecastRows(ctx, latestForecastsQuery, pq.Array(uuidStrings(siteUUIDs)), start)
	metrics.RecordDBQuery("latest_forecasts", time.Since(queryStart), len(rows), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecasts: %w", err)
	}

	return rows, nil
}

func (db *DB) queryForecastRows(ctx context.Context, query string, args ...any) ([]ForecastRow, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForecastRow
	for rows.Next() {
		var r ForecastRow
		if err := rows.Scan(
			&r.Forecast.ForecastUUID,
			&r.Forecast.SiteUUID,
			&r.Forecast.TimestampUTC,
			&r.Forecast.ForecastVersion,
			&r.Value.ForecastValueUUID,
			&r.Value.StartUTC,
			&r.Value.EndUTC,
			&r.Value.HorizonMinutes,
			&r.Value.ForecastPowerKW,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// GenerationBySites retrieves generation readings starting at or after startUTC
func (db *DB) GenerationBySites(ctx context.Context, siteUUIDs []uuid.UUID, startUTC time.Time) ([]GenerationRow, error) {
	query := `
		SELECT site_uuid, start_utc, end_utc, generation_power_kw
		FROM generation
		WHERE site_uuid = ANY($1::uuid[])
		  AND start_utc >= $2
		ORDER BY start_utc, site_uuid
	`

	queryStart := time.Now()
	out, err := func() ([]GenerationRow, error) {
		rows, err := db.QueryContext(ctx, query, pq.Array(uuidStrings(siteUUIDs)), startUTC)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []GenerationRow
		for rows.Next() {
			var g GenerationRow
			if err := rows.Scan(&g.SiteUUID, &g.StartUTC, &g.EndUTC, &g.GenerationPowerKW); err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, rows.Err()
	}()
	metrics.RecordDBQuery("generation_by_sites", time.Since(queryStart), len(out), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	return out, nil
}

// SitesByUUIDs retrieves the sites matching the given identifiers
func (db *DB) SitesByUUIDs(ctx context.Context, siteUUIDs []uuid.UUID) ([]*Site, error) {
	query := `
		SELECT site_uuid, client_site_id, client_site_name, region, dno, gsp,
		       latitude, longitude, inverter_capacity_kw, module_capacity_kw, created_utc
		FROM sites
		WHERE site_uuid = ANY($1::uuid[])
		ORDER BY site_uuid
	`

	queryStart := time.Now()
	sites, err := func() ([]*Site, error) {
		rows, err := db.QueryContext(ctx, query, pq.Array(uuidStrings(siteUUIDs)))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var sites []*Site
		for rows.Next() {
			var s Site
			if err := rows.Scan(
				&s.SiteUUID,
				&s.ClientSiteID,
				&s.ClientSiteName,
				&s.Region,
				&s.DNO,
				&s.GSP,
				&s.Latitude,
				&s.Longitude,
				&s.InverterCapacityKW,
				&s.ModuleCapacityKW,
				&s.CreatedUTC,
			); err != nil {
				return nil, err
			}
			sites = append(sites, &s)
		}
		return sites, rows.Err()
	}()
	metrics.RecordDBQuery("sites_by_uuids", time.Since(queryStart), len(sites), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}

	return sites, nil
}

// SiteExists checks whether a site is present
func (db *DB) SiteExists(ctx context.Context, siteUUID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sites WHERE site_uuid = $1)`

	queryStart := time.Now()
	var exists bool
	err := db.QueryRowContext(ctx, query, siteUUID.String()).Scan(&exists)
	metrics.RecordDBQuery("site_exists", time.Since(queryStart), 1, err)
	if err != nil {
		return false, fmt.Errorf("failed to check site: %w", err)
	}

	return exists, nil
}

// UserByEmail retrieves a user with the sites of their site group.
// Returns nil, nil when no user has that email.
func (db *DB) UserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT u.user_uuid, u.email, sg.site_group_uuid, sg.site_group_name,
		       COALESCE(
		           array_agg(sgs.site_uuid::text ORDER BY sgs.site_uuid) FILTER (WHERE sgs.site_uuid IS NOT NULL),
		           '{}'
		       ) AS site_uuids
		FROM users u
		JOIN site_groups sg ON sg.site_group_uuid = u.site_group_uuid
		LEFT JOIN site_group_sites sgs ON sgs.site_group_uuid = sg.site_group_uuid
		WHERE u.email = $1
		GROUP BY u.user_uuid, u.email, sg.site_group_uuid, sg.site_group_name
	`

	queryStart := time.Now()
	var u User
	err := db.QueryRowContext(ctx, query, email).Scan(
		&u.UserUUID,
		&u.Email,
		&u.SiteGroupUUID,
		&u.SiteGroupName,
		pq.Array(&u.SiteUUIDs),
	)
	metrics.RecordDBQuery("user_by_email", time.Since(queryStart), 1, ignoreNoRows(err))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}

func ignoreNoRows(err error) error {
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

// Package service exposes the pvsite read operations behind string site
// identifiers, validating input before any query runs.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/pvsite-server/internal/access"
	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/forecast"
	"github.com/smukkama/pvsite-server/internal/generation"
	"github.com/smukkama/pvsite-server/internal/protocol"
	"github.com/smukkama/pvsite-server/internal/sites"
)

var (
	errNoSites         = errors.New("at least one site is required")
	errNegativeHorizon = errors.New("horizon must not be negative")
)

// Service is the facade used by the command line and any future transport
type Service struct {
	forecasts  *forecast.Engine
	generation *generation.Retriever
	sites      *sites.Lookup
	authorizer *access.Authorizer
	logger     *slog.Logger
}

// New creates a new service
func New(forecasts *forecast.Engine, gen *generation.Retriever, lookup *sites.Lookup, authorizer *access.Authorizer, logger *slog.Logger) *Service {
	return &Service{
		forecasts:  forecasts,
		generation: gen,
		sites:      lookup,
		authorizer: authorizer,
		logger:     logger,
	}
}

// GetForecastsBySites returns the historical then forward forecasts for the sites
func (s *Service) GetForecastsBySites(ctx context.Context, siteIDs []string, startUTC time.Time, horizonMinutes int, compact bool) (forecast.Result, error) {
	ids, err := parseSiteIDs("get_forecasts", siteIDs)
	if err != nil {
		return forecast.Result{}, err
	}
	if horizonMinutes < 0 {
		return forecast.Result{}, apperr.Malformed("get_forecasts", errNegativeHorizon, "horizon %d", horizonMinutes)
	}

	return s.forecasts.GetForecastsBySites(ctx, ids, startUTC.UTC(), horizonMinutes, compact)
}

// GetGenerationBySites returns actual generation for the sites since startUTC
func (s *Service) GetGenerationBySites(ctx context.Context, siteIDs []string, startUTC time.Time, compact bool) (generation.Result, error) {
	ids, err := parseSiteIDs("get_generation", siteIDs)
	if err != nil {
		return generation.Result{}, err
	}
	return s.generation.GetGenerationBySites(ctx, ids, startUTC.UTC(), compact)
}

// GetSitesByIDs returns metadata for the known sites among siteIDs
func (s *Service) GetSitesByIDs(ctx context.Context, siteIDs []string) ([]protocol.PVSiteMetadata, error) {
	ids, err := parseSiteIDs("get_sites", siteIDs)
	if err != nil {
		return nil, err
	}
	return s.sites.SitesByUUIDs(ctx, ids)
}

// SiteExists reports whether siteID names a known site
func (s *Service) SiteExists(ctx context.Context, siteID string) (bool, error) {
	id, err := parseSiteID("site_exists", siteID)
	if err != nil {
		return false, err
	}
	return s.sites.SiteExists(ctx, id)
}

// CheckSite fails unless siteID is one of the caller's sites
func (s *Service) CheckSite(ctx context.Context, id access.Identity, siteID string) error {
	siteUUID, err := parseSiteID("check_site", siteID)
	if err != nil {
		return err
	}

	s.logger.Debug("checking site access", "email", id.Email, "site", siteUUID)
	return s.authorizer.CheckSite(ctx, id, siteUUID.String())
}

// CheckSites fails unless siteIDs are exactly the caller's sites. A single
// site is still held to the exact match.
func (s *Service) CheckSites(ctx context.Context, id access.Identity, siteIDs []string) error {
	ids, err := parseSiteIDs("check_sites", siteIDs)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return apperr.Malformed("check_sites", errNoSites, "no sites given")
	}

	canonical := make([]string, len(ids))
	for i, siteUUID := range ids {
		canonical[i] = siteUUID.String()
	}

	s.logger.Debug("checking site list access", "email", id.Email, "sites", len(canonical))
	return s.authorizer.CheckSites(ctx, id, canonical)
}

func parseSiteIDs(op string, siteIDs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		id, err := parseSiteID(op, siteID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseSiteID(op, siteID string) (uuid.UUID, error) {
	id, err := uuid.Parse(siteID)
	if err != nil {
		return uuid.Nil, apperr.Malformed(op, err, "invalid site uuid %q", siteID)
	}
	return id, nil
}

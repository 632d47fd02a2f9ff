package sites

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/metrics"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

// Store reads site records
type Store interface {
	SitesByUUIDs(ctx context.Context, siteUUIDs []uuid.UUID) ([]*database.Site, error)
	SiteExists(ctx context.Context, siteUUID uuid.UUID) (bool, error)
}

// Cache holds site metadata between requests
type Cache interface {
	GetSites(ctx context.Context, siteUUIDs []string) (map[string]protocol.PVSiteMetadata, error)
	SetSites(ctx context.Context, sites []protocol.PVSiteMetadata) error
}

// Lookup resolves site identifiers to metadata
type Lookup struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewLookup creates a new site lookup. cache may be nil.
func NewLookup(store Store, cache Cache, logger *slog.Logger) *Lookup {
	return &Lookup{store: store, cache: cache, logger: logger}
}

// SitesByUUIDs returns metadata for the sites that exist, in request order.
// Unknown identifiers are left out.
func (l *Lookup) SitesByUUIDs(ctx context.Context, siteUUIDs []uuid.UUID) ([]protocol.PVSiteMetadata, error) {
	ids := make([]string, 0, len(siteUUIDs))
	seen := make(map[uuid.UUID]bool, len(siteUUIDs))
	for _, id := range siteUUIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id.String())
		}
	}

	found := l.fromCache(ctx, ids)

	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, uuid.MustParse(id))
		}
	}

	if len(missing) > 0 {
		records, err := l.store.SitesByUUIDs(ctx, missing)
		if err != nil {
			return nil, apperr.Storage("sites_by_uuids", err)
		}

		fetched := make([]protocol.PVSiteMetadata, 0, len(records))
		for _, record := range records {
			site := protocol.SiteToMetadata(record)
			found[site.SiteUUID] = site
			fetched = append(fetched, site)
		}
		l.toCache(ctx, fetched)
	}

	out := make([]protocol.PVSiteMetadata, 0, len(found))
	for _, id := range ids {
		if site, ok := found[id]; ok {
			out = append(out, site)
		}
	}
	return out, nil
}

// SiteExists reports whether a site is known
func (l *Lookup) SiteExists(ctx context.Context, siteUUID uuid.UUID) (bool, error) {
	exists, err := l.store.SiteExists(ctx, siteUUID)
	if err != nil {
		return false, apperr.Storage("site_exists", err)
	}
	return exists, nil
}

func (l *Lookup) fromCache(ctx context.Context, ids []string) map[string]protocol.PVSiteMetadata {
	if l.cache == nil || len(ids) == 0 {
		return make(map[string]protocol.PVSiteMetadata, len(ids))
	}

	found, err := l.cache.GetSites(ctx, ids)
	if err != nil {
		metrics.RecordSiteCache("error", len(ids))
		l.logger.Warn("site cache read failed, falling back to database", "error", err)
		return make(map[string]protocol.PVSiteMetadata, len(ids))
	}

	metrics.RecordSiteCache("hit", len(found))
	metrics.RecordSiteCache("miss", len(ids)-len(found))
	return found
}

func (l *Lookup) toCache(ctx context.Context, sites []protocol.PVSiteMetadata) {
	if l.cache == nil || len(sites) == 0 {
		return
	}
	if err := l.cache.SetSites(ctx, sites); err != nil {
		l.logger.Warn("site cache write failed", "error", err, "sites", len(sites))
	}
}

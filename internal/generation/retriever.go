package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

// Store reads generation readings
type Store interface {
	GenerationBySites(ctx context.Context, siteUUIDs []uuid.UUID, startUTC time.Time) ([]database.GenerationRow, error)
}

// Retriever fetches actual generation for sites
type Retriever struct {
	store  Store
	logger *slog.Logger
}

// NewRetriever creates a new generation retriever
func NewRetriever(store Store, logger *slog.Logger) *Retriever {
	return &Retriever{store: store, logger: logger}
}

// Result holds one of the two output shapes
type Result struct {
	Compact bool
	BySite  []protocol.MultiplePVActual
	ByTime  []protocol.PVActualValueBySite
}

// Payload returns the populated shape
func (r Result) Payload() any {
	if r.Compact {
		return r.ByTime
	}
	return r.BySite
}

// GetGenerationBySites returns readings at or after startUTC, grouped per site
// or, when compact, per timestamp.
func (r *Retriever) GetGenerationBySites(ctx context.Context, siteUUIDs []uuid.UUID, startUTC time.Time, compact bool) (Result, error) {
	r.logger.Info("getting generation", "sites", len(siteUUIDs), "start_utc", startUTC, "compact", compact)

	rows, err := r.store.GenerationBySites(ctx, siteUUIDs, startUTC)
	if err != nil {
		return Result{}, apperr.Storage("generation_by_sites", err)
	}
	r.logger.Debug("found generation readings", "count", len(rows))

	if compact {
		return Result{Compact: true, ByTime: protocol.GenerationRowsToCompact(rows)}, nil
	}

	ids := make([]string, len(siteUUIDs))
	for i, id := range siteUUIDs {
		ids[i] = id.String()
	}
	return Result{BySite: protocol.GenerationRowsToVerbose(rows, ids)}, nil
}

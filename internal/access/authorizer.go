package access

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/metrics"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

// UserStore resolves a caller to their site group
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (*database.User, error)
}

// Auditor records denied access checks
type Auditor interface {
	AccessDenied(ctx context.Context, event *protocol.AccessDeniedEvent) error
}

// Authorizer checks a caller's site entitlements
type Authorizer struct {
	users   UserStore
	auditor Auditor
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthorizer creates a new authorizer. auditor may be nil.
func NewAuthorizer(users UserStore, auditor Auditor, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		users:   users,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckSite fails unless site is among the caller's entitled sites
func (a *Authorizer) CheckSite(ctx context.Context, id Identity, site string) error {
	entitled, err := a.entitlements(ctx, id)
	if err != nil {
		return err
	}

	allowed := slices.Contains(entitled, site)
	metrics.RecordAccessCheck("single", allowed)
	if allowed {
		return nil
	}

	denial := &apperr.AccessError{Email: id.Email, Denied: []string{site}, Entitled: entitled}
	a.audit(ctx, protocol.AccessCheckSingle, []string{site}, denial)
	return denial
}

// CheckSites fails unless the requested sites are exactly the caller's
// entitled sites. Subsets and supersets are both refused.
func (a *Authorizer) CheckSites(ctx context.Context, id Identity, sites []string) error {
	entitled, err := a.entitlements(ctx, id)
	if err != nil {
		return err
	}

	requested := slices.Clone(sites)
	slices.Sort(requested)
	sortedEntitled := slices.Clone(entitled)
	slices.Sort(sortedEntitled)

	allowed := slices.Equal(requested, sortedEntitled)
	metrics.RecordAccessCheck("multi", allowed)
	if allowed {
		return nil
	}

	var denied []string
	for _, site := range sites {
		if !slices.Contains(entitled, site) {
			denied = append(denied, site)
		}
	}
	if len(denied) == 0 {
		denied = slices.Clone(sites)
	}

	denial := &apperr.AccessError{Email: id.Email, Denied: denied, Entitled: entitled}
	a.audit(ctx, protocol.AccessCheckMulti, sites, denial)
	return denial
}

func (a *Authorizer) entitlements(ctx context.Context, id Identity) ([]string, error) {
	user, err := a.users.UserByEmail(ctx, id.Email)
	if err != nil {
		return nil, apperr.Storage("user_by_email", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user_by_email", "user %s not found", id.Email)
	}

	a.logger.Debug("resolved site group",
		"email", id.Email,
		"site_group", user.SiteGroupName,
		"sites", len(user.SiteUUIDs),
	)
	if user.SiteUUIDs == nil {
		return []string{}, nil
	}
	return user.SiteUUIDs, nil
}

func (a *Authorizer) audit(ctx context.Context, checkType string, requested []string, denial *apperr.AccessError) {
	a.logger.Warn("site access denied",
		"email", denial.Email,
		"check", checkType,
		"denied", denial.Denied,
	)
	if a.auditor == nil {
		return
	}

	event := &protocol.AccessDeniedEvent{
		Type:          checkType,
		Email:         denial.Email,
		RequestedSite: requested,
		DeniedSites:   denial.Denied,
		EntitledSites: denial.Entitled,
		OccurredAt:    a.now().UTC(),
	}
	if err := a.auditor.AccessDenied(ctx, event); err != nil {
		a.logger.Error("failed to publish access denial", "error", err, "email", denial.Email)
	}
}

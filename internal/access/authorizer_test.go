package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/internal/database"
	"github.com/smukkama/pvsite-server/internal/protocol"
)

type fakeUsers struct {
	users map[string]*database.User
	err   error
}

func (f *fakeUsers) UserByEmail(_ context.Context, email string) (*database.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[email], nil
}

type fakeAuditor struct {
	events []*protocol.AccessDeniedEvent
	err    error
}

func (f *fakeAuditor) AccessDenied(_ context.Context, event *protocol.AccessDeniedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

const (
	siteA = "11111111-1111-1111-1111-111111111111"
	siteB = "22222222-2222-2222-2222-222222222222"
	siteC = "33333333-3333-3333-3333-333333333333"
)

var caller = Identity{Email: "user@example.com"}

func newAuthorizer(auditor Auditor, sites ...string) *Authorizer {
	users := &fakeUsers{users: map[string]*database.User{
		caller.Email: {Email: caller.Email, SiteGroupName: "group", SiteUUIDs: sites},
	}}
	a := NewAuthorizer(users, auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestCheckSite(t *testing.T) {
	auditor := &fakeAuditor{}
	a := newAuthorizer(auditor, siteA, siteB)
	ctx := context.Background()

	require.NoError(t, a.CheckSite(ctx, caller, siteA))
	assert.Empty(t, auditor.events)

	err := a.CheckSite(ctx, caller, siteC)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	var denial *apperr.AccessError
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, []string{siteC}, denial.Denied)
	assert.Equal(t, []string{siteA, siteB}, denial.Entitled)
	assert.Contains(t, err.Error(), "Forbidden. User (user@example.com)")
	assert.Contains(t, err.Error(), siteC)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, protocol.AccessCheckSingle, auditor.events[0].Type)
	assert.Equal(t, []string{siteC}, auditor.events[0].RequestedSite)
}

func TestCheckSites(t *testing.T) {
	tests := []struct {
		name       string
		requested  []string
		wantErr    bool
		wantDenied []string
	}{
		{"exact match", []string{siteA, siteB}, false, nil},
		{"exact match any order", []string{siteB, siteA}, false, nil},
		{"strict subset", []string{siteA}, true, []string{siteA}},
		{"superset", []string{siteA, siteB, siteC}, true, []string{siteC}},
		{"disjoint", []string{siteC}, true, []string{siteC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &fakeAuditor{}
			err := newAuthorizer(auditor, siteA, siteB).CheckSites(context.Background(), caller, tt.requested)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Empty(t, auditor.events)
				return
			}

			var denial *apperr.AccessError
			require.ErrorAs(t, err, &denial)
			assert.Equal(t, tt.wantDenied, denial.Denied)
			require.Len(t, auditor.events, 1)
			assert.Equal(t, protocol.AccessCheckMulti, auditor.events[0].Type)
			assert.Equal(t, tt.requested, auditor.events[0].RequestedSite)
		})
	}
}

func TestCheckSites_DoesNotReorderInput(t *testing.T) {
	requested := []string{siteB, siteA}
	require.NoError(t, newAuthorizer(nil, siteA, siteB).CheckSites(context.Background(), caller, requested))
	assert.Equal(t, []string{siteB, siteA}, requested)
}

func TestCheck_UnknownUser(t *testing.T) {
	a := newAuthorizer(nil, siteA)
	stranger := Identity{Email: "nobody@example.com"}

	err := a.CheckSite(context.Background(), stranger, siteA)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = a.CheckSites(context.Background(), stranger, []string{siteA})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCheck_EmptyGroup(t *testing.T) {
	a := newAuthorizer(nil)

	err := a.CheckSite(context.Background(), caller, siteA)
	var denial *apperr.AccessError
	require.ErrorAs(t, err, &denial)
	assert.Empty(t, denial.Entitled)
}

func TestCheck_StorageFailure(t *testing.T) {
	a := NewAuthorizer(&fakeUsers{err: errors.New("db down")}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := a.CheckSite(context.Background(), caller, siteA)
	assert.True(t, apperr.Is(err, apperr.KindStorageFailure))
}

func TestCheck_AuditFailureKeepsDenial(t *testing.T) {
	auditor := &fakeAuditor{err: errors.New("kafka down")}

	err := newAuthorizer(auditor, siteA).CheckSite(context.Background(), caller, siteB)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Len(t, auditor.events, 1)
}

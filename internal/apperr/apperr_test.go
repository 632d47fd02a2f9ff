package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", base, KindUnknown},
		{"storage", Storage("sites", base), KindStorageFailure},
		{"wrapped storage", fmt.Errorf("outer: %w", Storage("sites", base)), KindStorageFailure},
		{"not found", NotFound("user", "no user %s", "a@b.c"), KindNotFound},
		{"malformed", Malformed("parse", base, "bad id %q", "x"), KindMalformedInput},
		{"access", &AccessError{Email: "a@b.c"}, KindAuthorization},
		{"wrapped access", fmt.Errorf("check: %w", &AccessError{Email: "a@b.c"}), KindAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStorageUnwrap(t *testing.T) {
	base := errors.New("timeout")
	err := Storage("forecasts_for_horizon", base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "forecasts_for_horizon: storage failure: timeout", err.Error())
}

func TestAccessErrorMessage(t *testing.T) {
	err := &AccessError{
		Email:    "user@example.com",
		Denied:   []string{"site-c"},
		Entitled: []string{"site-a", "site-b"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "user@example.com")
	assert.Contains(t, msg, "site-c")
	assert.Contains(t, msg, "[site-a site-b]")
	assert.True(t, Is(err, KindAuthorization))
}

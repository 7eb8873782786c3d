package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("bad input"), false},
		{"transient marker", NewTransientError(errors.New("429"), 429), true},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(errors.New("503"), 503)), true},
		{"connection reset string", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure string", errors.New("dial tcp: lookup api.example.com: no such host"), true},
		{"io timeout string", errors.New("context deadline exceeded (Client.Timeout): i/o timeout"), true},
		{"validation error", errors.New("missing recipient email"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("throttled")
	te := NewTransientError(inner, 429)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "throttled", te.Error())
	assert.Equal(t, 429, te.StatusCode)
}

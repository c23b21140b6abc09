package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsentry/api/internal/domain"
)

func TestKeywordFilter_Keep(t *testing.T) {
	t.Parallel()

	f := NewKeywordFilter(nil)

	tests := []struct {
		name  string
		title string
		body  string
		want  bool
	}{
		{
			name:  "open posting passes",
			title: "Senior Go Engineer",
			body:  "We are hiring a Go engineer for our platform team.",
			want:  true,
		},
		{
			name:  "blocked term in body",
			title: "Senior Go Engineer",
			body:  "This posting has expired.",
			want:  false,
		},
		{
			name:  "blocked term case insensitive",
			title: "POSITION FILLED",
			body:  "thanks for your interest",
			want:  false,
		},
		{
			name:  "empty body",
			title: "Senior Go Engineer",
			body:  "   ",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.Posting{Title: tt.title, Body: tt.body}
			assert.Equal(t, tt.want, f.Keep(p))
		})
	}
}

func TestKeywordFilter_CustomBlocklist(t *testing.T) {
	t.Parallel()

	f := NewKeywordFilter([]string{"unpaid internship"})

	assert.False(t, f.Keep(&domain.Posting{Title: "Unpaid Internship", Body: "great exposure"}))
	assert.True(t, f.Keep(&domain.Posting{Title: "Position filled", Body: "body"}),
		"custom blocklist replaces the default terms")
}

func TestHTTPLivenessChecker_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   Liveness
	}{
		{name: "ok is alive", status: http.StatusOK, want: LivenessAlive},
		{name: "redirect is alive", status: http.StatusFound, want: LivenessAlive},
		{name: "not found is gone", status: http.StatusNotFound, want: LivenessGone},
		{name: "gone is gone", status: http.StatusGone, want: LivenessGone},
		{name: "server error is ambiguous", status: http.StatusInternalServerError, want: LivenessUnknown},
		{name: "rate limited is ambiguous", status: http.StatusTooManyRequests, want: LivenessUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			// Redirects must not be followed; a redirect target may 200
			// on a generic landing page.
			client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}}
			c := NewHTTPLivenessChecker(client, testLogger())

			got, err := c.Check(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPLivenessChecker_TransportError(t *testing.T) {
	t.Parallel()

	c := NewHTTPLivenessChecker(nil, testLogger())

	got, err := c.Check(context.Background(), "http://127.0.0.1:1")
	assert.Error(t, err)
	assert.Equal(t, LivenessUnknown, got)
}

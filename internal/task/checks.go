package task

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jobsentry/api/internal/domain"
)

// defaultBlockedTerms mark postings that are not real openings.
var defaultBlockedTerms = []string{
	"position filled",
	"no longer accepting",
	"this posting has expired",
}

// KeywordFilter rejects postings whose text contains a blocked term or
// whose body is empty. It is the cheap pre-check in front of re-analysis.
type KeywordFilter struct {
	blocked []string
}

// NewKeywordFilter creates a KeywordFilter. A nil term list uses the
// default blocklist.
func NewKeywordFilter(blocked []string) *KeywordFilter {
	if blocked == nil {
		blocked = defaultBlockedTerms
	}
	return &KeywordFilter{blocked: blocked}
}

// Keep reports whether the posting still looks like an open position.
func (f *KeywordFilter) Keep(p *domain.Posting) bool {
	if strings.TrimSpace(p.Body) == "" {
		return false
	}

	text := strings.ToLower(p.Title + "\n" + p.Body)
	for _, term := range f.blocked {
		if strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// HTTPLivenessChecker probes a posting URL with a HEAD request.
type HTTPLivenessChecker struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPLivenessChecker creates an HTTPLivenessChecker. A nil client uses
// a default one with a short timeout.
func NewHTTPLivenessChecker(client *http.Client, logger *slog.Logger) *HTTPLivenessChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLivenessChecker{client: client, logger: logger}
}

// Check reports whether the posting URL still resolves. Only a definitive
// 404 or 410 counts as gone; rate limits, server errors and transport
// failures stay ambiguous.
func (c *HTTPLivenessChecker) Check(ctx context.Context, url string) (Liveness, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return LivenessUnknown, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return LivenessUnknown, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close liveness response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return LivenessGone, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return LivenessAlive, nil
	default:
		return LivenessUnknown, nil
	}
}

// Package stats defines the stats-provider port and the Invidious-style
// HTTP adapter that backs it in production.
package stats

import (
	"context"
	"errors"
)

// ErrUnavailable covers every non-success outcome from a provider: network
// failure, rate limit, deleted video, auth failure. The poll executor never
// distinguishes subtypes; it retries with backoff and then defers the poll.
var ErrUnavailable = errors.New("stats provider unavailable")

// Stats is one point-in-time measurement of a video.
type Stats struct {
	Views int64
	Likes int64
}

// Provider returns current public counters for a video.
type Provider interface {
	Fetch(ctx context.Context, videoID string) (Stats, error)
}

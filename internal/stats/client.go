package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "viewtrack/pkg/logx"
)

// ClientConfig configures the HTTP stats client.
type ClientConfig struct {
	// BaseURL of an Invidious-compatible instance, e.g. https://inv.example.org.
	BaseURL string
	// Timeout bounds a single request. Retries are the executor's concern.
	Timeout time.Duration
	// RequestsPerSec caps outbound calls across all trackers. 0 disables
	// the limiter.
	RequestsPerSec float64
}

// Client fetches video counters from an Invidious-compatible API
// (GET /api/v1/videos/{id}). All failures collapse to ErrUnavailable.
type Client struct {
	base  string
	httpc *http.Client
	log   logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("stats: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("stats: invalid base url %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		base:  base,
		httpc: &http.Client{Timeout: timeout},
		log:   log,
	}
	c.SetRate(cfg.RequestsPerSec)
	return c, nil
}

// SetRate swaps the outbound request cap at runtime (config hot reload).
func (c *Client) SetRate(perSec float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if perSec <= 0 {
		c.limiter = nil
		return
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
}

type videoResponse struct {
	VideoID   string `json:"videoId"`
	ViewCount int64  `json:"viewCount"`
	LikeCount int64  `json:"likeCount"`
}

func (c *Client) Fetch(ctx context.Context, videoID string) (Stats, error) {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Stats{}, err
		}
	}

	u := c.base + "/api/v1/videos/" + url.PathEscape(videoID) + "?fields=videoId,viewCount,likeCount"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("%w: %s returned %d", ErrUnavailable, c.base, resp.StatusCode)
	}

	var body videoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Stats{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if body.ViewCount < 0 || body.LikeCount < 0 {
		return Stats{}, fmt.Errorf("%w: negative counters for %s", ErrUnavailable, videoID)
	}

	return Stats{Views: body.ViewCount, Likes: body.LikeCount}, nil
}

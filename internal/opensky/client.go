package opensky

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"flight_tracks/internal/models"
)

const (
	DefaultBaseURL   = "https://opensky-network.org/api"
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "flight_tracks/1.0"

	maxBodyBytes     = 8 << 20
	maxDiagnosticLen = 512
)

// TrackFetcher retrieves the track of one aircraft.
// A time of 0 asks for the most recent track available.
type TrackFetcher interface {
	FetchTrack(ctx context.Context, icao24 models.ICAO24, t int64) (*models.FlightTrack, error)
}

// Config holds the client settings
type Config struct {
	BaseURL     string
	Timeout     time.Duration // per request
	UserAgent   string
	Username    string // optional basic auth
	Password    string
	MaxRetries  int             // 0 sends exactly one request per call
	RetryDelays []time.Duration // delay before retry n is RetryDelays[n-1], last entry reused
	RateLimit   float64         // requests per second, 0 disables the limiter
	RateBurst   int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		RetryDelays: []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
		},
	}
}

// Client fetches flight tracks from the OpenSky REST API.
// It is safe for concurrent use.
type Client struct {
	baseURL     string
	userAgent   string
	username    string
	password    string
	maxRetries  int
	retryDelays []time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	if cfg.MaxRetries > 0 && len(cfg.RetryDelays) == 0 {
		return nil, fmt.Errorf("retry delays are required when max retries is %d", cfg.MaxRetries)
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		username:    cfg.Username,
		password:    cfg.Password,
		maxRetries:  cfg.MaxRetries,
		retryDelays: cfg.RetryDelays,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c, nil
}

// TrackURL builds the tracks/all request URL
func (c *Client) TrackURL(icao24 models.ICAO24, t int64) string {
	q := url.Values{}
	q.Set("icao24", string(icao24))
	q.Set("time", strconv.FormatInt(t, 10))
	return c.baseURL + "/tracks/all?" + q.Encode()
}

// FetchTrack returns the track of icao24 around unix time t, or the latest one when t is 0.
// Every failure is a *FetchError.
func (c *Client) FetchTrack(ctx context.Context, icao24 models.ICAO24, t int64) (*models.FlightTrack, error) {
	if err := icao24.Validate(); err != nil {
		return nil, &FetchError{Kind: KindInvalidInput, ICAO24: icao24, Err: err}
	}
	if t < 0 {
		return nil, &FetchError{
			Kind:   KindInvalidInput,
			ICAO24: icao24,
			Err:    fmt.Errorf("time must be 0 or a unix timestamp, got %d", t),
		}
	}

	reqURL := c.TrackURL(icao24, t)

	var lastErr *FetchError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delayIdx := attempt - 1
			if delayIdx >= len(c.retryDelays) {
				delayIdx = len(c.retryDelays) - 1
			}

			select {
			case <-time.After(c.retryDelays[delayIdx]):
			case <-ctx.Done():
				return nil, &FetchError{Kind: KindNetworkError, ICAO24: icao24, Err: ctx.Err()}
			}
		}

		track, err := c.fetchOnce(ctx, icao24, reqURL)
		if err == nil {
			slog.Debug("Fetched flight track",
				"icao24", icao24,
				"time", t,
				"attempt", attempt+1,
				"points", len(track.Path),
			)
			return track, nil
		}

		lastErr = err
		if !err.Retryable() || ctx.Err() != nil {
			break
		}
		if attempt < c.maxRetries {
			slog.Warn("Flight track request failed, retrying",
				"icao24", icao24,
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"error", err,
			)
		}
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, icao24 models.ICAO24, reqURL string) (*models.FlightTrack, *FetchError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			cause := ctx.Err()
			if cause == nil {
				// The limiter refuses up front when the wait would outlive the deadline
				cause = context.DeadlineExceeded
			}
			return nil, &FetchError{
				Kind:   KindNetworkError,
				ICAO24: icao24,
				Err:    fmt.Errorf("%w: %w: %v", errLimiterWait, cause, err),
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetworkError, ICAO24: icao24, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	slog.Debug("Requesting flight track", "icao24", icao24, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetworkError, ICAO24: icao24, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Kind: KindNetworkError, ICAO24: icao24, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind:       KindRemoteError,
			ICAO24:     icao24,
			StatusCode: resp.StatusCode,
			Body:       truncate(body),
		}
	}

	if len(body) > maxBodyBytes {
		return nil, &FetchError{
			Kind:   KindDecodeError,
			ICAO24: icao24,
			Body:   truncate(body),
			Err:    fmt.Errorf("response body exceeds %d bytes", maxBodyBytes),
		}
	}

	track, err := decodeTrack(icao24, body)
	if err != nil {
		return nil, &FetchError{Kind: KindDecodeError, ICAO24: icao24, Body: truncate(body), Err: err}
	}

	return track, nil
}

func truncate(body []byte) string {
	if len(body) <= maxDiagnosticLen {
		return string(body)
	}
	return string(body[:maxDiagnosticLen]) + "...(truncated)"
}

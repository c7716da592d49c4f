package opensky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight_tracks/internal/models"
)

const twoPointTrack = `{
	"icao24": "3c6444",
	"callsign": "DLH9U   ",
	"startTime": 1000,
	"endTime": 1010,
	"path": [
		[1000, 50.0, 8.0, 1000, 90, false],
		[1010, 50.01, 8.01, 1010, 91, false]
	]
}`

// newTestServer serves the given status and body and counts requests
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, baseURL string, modify ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	for _, m := range modify {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func requireKind(t *testing.T, err error, kind ErrorKind) *FetchError {
	t.Helper()
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %T", err)
	assert.Equal(t, kind, fe.Kind)
	return fe
}

func f64(v float64) *float64 { return &v }

func TestTrackURL(t *testing.T) {
	c := newTestClient(t, DefaultBaseURL)

	tests := []struct {
		icao24   models.ICAO24
		time     int64
		expected string
	}{
		{"3c6444", 0, "https://opensky-network.org/api/tracks/all?icao24=3c6444&time=0"},
		{"abcdef", 0, "https://opensky-network.org/api/tracks/all?icao24=abcdef&time=0"},
		{"000000", 1696000000, "https://opensky-network.org/api/tracks/all?icao24=000000&time=1696000000"},
	}

	for _, tt := range tests {
		t.Run(string(tt.icao24), func(t *testing.T) {
			assert.Equal(t, tt.expected, c.TrackURL(tt.icao24, tt.time))
		})
	}
}

func TestTrackURL_TrailingSlash(t *testing.T) {
	c := newTestClient(t, "http://localhost:9999/api/")
	assert.Equal(t, "http://localhost:9999/api/tracks/all?icao24=3c6444&time=0", c.TrackURL("3c6444", 0))
}

func TestFetchTrack_InvalidInput(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, twoPointTrack)
	c := newTestClient(t, srv.URL)

	for _, id := range []models.ICAO24{"XYZ", "12345", "1234567", "3C6444", "", "3c644g"} {
		t.Run(string(id), func(t *testing.T) {
			track, err := c.FetchTrack(context.Background(), id, 0)
			assert.Nil(t, track)
			requireKind(t, err, KindInvalidInput)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := c.FetchTrack(context.Background(), "3c6444", -1)
	requireKind(t, err, KindInvalidInput)

	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchTrack_PreservesPathOrder(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(twoPointTrack))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api")
	track, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)

	assert.Equal(t, "/api/tracks/all", gotPath)
	assert.Equal(t, "icao24=3c6444&time=0", gotQuery)

	assert.Equal(t, models.ICAO24("3c6444"), track.ICAO24)
	require.NotNil(t, track.Callsign)
	assert.Equal(t, "DLH9U", *track.Callsign)
	assert.Equal(t, int64(1000), track.StartTime)
	assert.Equal(t, int64(1010), track.EndTime)
	assert.False(t, track.InFlight())

	expected := []models.TrackPoint{
		{Time: 1000, Latitude: f64(50.0), Longitude: f64(8.0), BaroAltitude: f64(1000), TrueTrack: f64(90), OnGround: false},
		{Time: 1010, Latitude: f64(50.01), Longitude: f64(8.01), BaroAltitude: f64(1010), TrueTrack: f64(91), OnGround: false},
	}
	assert.Equal(t, expected, track.Path)
}

func TestFetchTrack_EmptyPath(t *testing.T) {
	bodies := map[string]string{
		"empty array": `{"icao24":"3c6444","callsign":null,"startTime":1000,"endTime":0,"path":[]}`,
		"null path":   `{"icao24":"3c6444","callsign":null,"startTime":1000,"endTime":0,"path":null}`,
		"no path":     `{"icao24":"3c6444","startTime":1000}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			c := newTestClient(t, srv.URL)

			track, err := c.FetchTrack(context.Background(), "3c6444", 0)
			require.NoError(t, err)
			require.NotNil(t, track.Path)
			assert.Len(t, track.Path, 0)
			assert.Nil(t, track.Callsign)
			assert.True(t, track.InFlight())
		})
	}
}

func TestFetchTrack_NullWaypointFields(t *testing.T) {
	body := `{"icao24":"3c6444","callsign":"  ","startTime":1000,"endTime":1010,
		"path":[[1000, null, null, null, null, null], [1005, 50.0, 8.0, null, 45.5, true]]}`
	srv, _ := newTestServer(t, http.StatusOK, body)
	c := newTestClient(t, srv.URL)

	track, err := c.FetchTrack(context.Background(), "3c6444", 1005)
	require.NoError(t, err)
	require.Len(t, track.Path, 2)

	assert.Nil(t, track.Callsign)
	assert.Equal(t, models.TrackPoint{Time: 1000}, track.Path[0])
	assert.Nil(t, track.Path[1].BaroAltitude)
	assert.Equal(t, 45.5, *track.Path[1].TrueTrack)
	assert.True(t, track.Path[1].OnGround)
}

func TestFetchTrack_RemoteError(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusNotFound, "no track found")
	c := newTestClient(t, srv.URL)

	track, err := c.FetchTrack(context.Background(), "3c6444", 0)
	assert.Nil(t, track)

	fe := requireKind(t, err, KindRemoteError)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "no track found", fe.Body)
	assert.ErrorIs(t, err, ErrRemote)
	assert.False(t, fe.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTrack_RemoteErrorBodyTruncated(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, strings.Repeat("x", 4096))
	c := newTestClient(t, srv.URL)

	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	fe := requireKind(t, err, KindRemoteError)
	assert.Less(t, len(fe.Body), 600)
	assert.True(t, strings.HasSuffix(fe.Body, "...(truncated)"))
}

func TestFetchTrack_DecodeError(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>oops</html>`,
		"null body":       `null`,
		"empty body":      ``,
		"short waypoint":  `{"icao24":"3c6444","path":[[1000, 50.0, 8.0, 1000, 90]]}`,
		"string latitude": `{"icao24":"3c6444","path":[[1000, "50.0", 8.0, 1000, 90, false]]}`,
		"null time":       `{"icao24":"3c6444","path":[[null, 50.0, 8.0, 1000, 90, false]]}`,
		"path not array":  `{"icao24":"3c6444","path":{}}`,
		"empty object":    `{}`,
		"error reply":     `{"message":"Too many requests"}`,
		"missing start":   `{"icao24":"3c6444","path":[]}`,
		"null icao24":     `{"icao24":null,"startTime":1000,"path":[]}`,
		"start overflow":  `{"icao24":"3c6444","startTime":1e30,"path":[]}`,
		"negative end":    `{"icao24":"3c6444","startTime":1000,"endTime":-5,"path":[]}`,
		"time overflow":   `{"icao24":"3c6444","startTime":1000,"path":[[1e30, 50.0, 8.0, 1000, 90, false]]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			c := newTestClient(t, srv.URL)

			var track *models.FlightTrack
			var err error
			assert.NotPanics(t, func() {
				track, err = c.FetchTrack(context.Background(), "3c6444", 0)
			})
			assert.Nil(t, track)

			fe := requireKind(t, err, KindDecodeError)
			assert.Equal(t, body, fe.Body)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestFetchTrack_Idempotent(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, twoPointTrack)
	c := newTestClient(t, srv.URL)

	first, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)
	second, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchTrack_Headers(t *testing.T) {
	var userAgent, accept string
	var user, pass string
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		user, pass, hasAuth = r.BasicAuth()
		_, _ = w.Write([]byte(twoPointTrack))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.UserAgent = "tracker-test/0.1"
		cfg.Username = "alice"
		cfg.Password = "secret"
	})

	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)

	assert.Equal(t, "tracker-test/0.1", userAgent)
	assert.Equal(t, "application/json", accept)
	assert.True(t, hasAuth)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestFetchTrack_NoRetryByDefault(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusServiceUnavailable, "busy")
	c := newTestClient(t, srv.URL)

	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	fe := requireKind(t, err, KindRemoteError)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTrack_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(twoPointTrack))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.MaxRetries = 3
		cfg.RetryDelays = []time.Duration{time.Millisecond}
	})

	track, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)
	assert.Len(t, track.Path, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchTrack_DoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusBadRequest} {
		srv, calls := newTestServer(t, status, "")
		c := newTestClient(t, srv.URL, func(cfg *Config) {
			cfg.MaxRetries = 3
			cfg.RetryDelays = []time.Duration{time.Millisecond}
		})

		_, err := c.FetchTrack(context.Background(), "3c6444", 0)
		requireKind(t, err, KindRemoteError)
		assert.Equal(t, int32(1), calls.Load())
	}

	srv, calls := newTestServer(t, http.StatusOK, "garbage")
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.MaxRetries = 3
		cfg.RetryDelays = []time.Duration{time.Millisecond}
	})
	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	requireKind(t, err, KindDecodeError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTrack_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(t, baseURL)
	_, err := c.FetchTrack(context.Background(), "3c6444", 0)

	fe := requireKind(t, err, KindNetworkError)
	assert.NotNil(t, fe.Err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchTrack_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	fe := requireKind(t, err, KindNetworkError)
	assert.True(t, fe.Timeout())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchTrack_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Timeout = 5 * time.Second
		cfg.MaxRetries = 3
		cfg.RetryDelays = []time.Duration{time.Millisecond}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.FetchTrack(ctx, "3c6444", 0)
	fe := requireKind(t, err, KindNetworkError)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, fe.Retryable())
}

func TestFetchTrack_RateLimited(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, twoPointTrack)
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
	})

	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.FetchTrack(ctx, "3c6444", 0)
	fe := requireKind(t, err, KindNetworkError)
	assert.True(t, fe.Timeout())
	assert.False(t, fe.Retryable())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTrack_RateLimitedDoesNotRetry(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, twoPointTrack)
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
		cfg.MaxRetries = 3
		cfg.RetryDelays = []time.Duration{time.Millisecond}
	})

	_, err := c.FetchTrack(context.Background(), "3c6444", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err = c.FetchTrack(ctx, "3c6444", 0)
	fe := requireKind(t, err, KindNetworkError)
	assert.True(t, fe.Timeout())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewClient(Config{MaxRetries: 2})
	assert.Error(t, err)

	_, err = NewClient(Config{MaxRetries: -1})
	assert.Error(t, err)

	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Nil(t, c.limiter)
}

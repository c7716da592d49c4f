package opensky

import (
	"context"
	"errors"
	"fmt"
	"net"

	"flight_tracks/internal/models"
)

// ErrorKind classifies why a track could not be fetched
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1 // rejected before any request was sent
	KindNetworkError                      // transport failure, timeout or cancellation
	KindRemoteError                       // non-2xx response
	KindDecodeError                       // body is not a track document
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNetworkError:
		return "network_error"
	case KindRemoteError:
		return "remote_error"
	case KindDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; each matches any FetchError of the same kind.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNetwork      = errors.New("network error")
	ErrRemote       = errors.New("remote error")
	ErrDecode       = errors.New("decode error")
)

// errLimiterWait marks network errors raised while waiting for the rate limiter
var errLimiterWait = errors.New("rate limiter wait")

// FetchError is the only error type returned by Client.FetchTrack
type FetchError struct {
	Kind       ErrorKind
	ICAO24     models.ICAO24
	StatusCode int    // set for KindRemoteError
	Body       string // truncated response body, set for KindRemoteError and KindDecodeError
	Err        error  // underlying cause
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindRemoteError:
		if e.Body != "" {
			return fmt.Sprintf("opensky %s: %s: status %d: %s", e.ICAO24, e.Kind, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("opensky %s: %s: status %d", e.ICAO24, e.Kind, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("opensky %s: %s: %v", e.ICAO24, e.Kind, e.Err)
		}
		return fmt.Sprintf("opensky %s: %s", e.ICAO24, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrNetwork:
		return e.Kind == KindNetworkError
	case ErrRemote:
		return e.Kind == KindRemoteError
	case ErrDecode:
		return e.Kind == KindDecodeError
	}
	return false
}

// Timeout reports whether a network error was caused by a deadline
func (e *FetchError) Timeout() bool {
	if e.Kind != KindNetworkError {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Retryable reports whether another attempt could succeed
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindNetworkError:
		// Another limiter wait under the same deadline fails the same way
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, errLimiterWait)
	case KindRemoteError:
		return e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

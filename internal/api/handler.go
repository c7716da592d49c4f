package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"flight_tracks/internal/database"
	"flight_tracks/internal/models"
	"flight_tracks/internal/opensky"
)

// AircraftLookup resolves registry details for an aircraft
type AircraftLookup interface {
	Lookup(ctx context.Context, icao24 models.ICAO24) (*models.Aircraft, error)
}

type TrackHandler struct {
	fetcher  opensky.TrackFetcher
	registry AircraftLookup // nil when the registry is disabled
}

func NewTrackHandler(fetcher opensky.TrackFetcher, registry AircraftLookup) *TrackHandler {
	return &TrackHandler{
		fetcher:  fetcher,
		registry: registry,
	}
}

// GetTrack serves GET /api/v1/tracks/:icao24?time=<unix seconds>
func (h *TrackHandler) GetTrack(c echo.Context) error {
	ctx := c.Request().Context()

	icao24, err := models.ParseICAO24(c.Param("icao24"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	var t int64
	if raw := c.QueryParam("time"); raw != "" {
		t, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || t < 0 {
			return errorJSON(c, http.StatusBadRequest, "invalid_request", "time must be 0 or a unix timestamp in seconds")
		}
	}

	track, err := h.fetcher.FetchTrack(ctx, icao24, t)
	if err != nil {
		return fetchErrorJSON(c, err)
	}

	resp := models.TrackResponse{Track: track}
	if h.registry != nil {
		ac, err := h.registry.Lookup(ctx, icao24)
		switch {
		case err == nil:
			resp.Aircraft = ac
		case errors.Is(err, database.ErrAircraftNotFound):
			// unregistered aircraft still get their track
		default:
			slog.Warn("Aircraft registry lookup failed", "icao24", icao24, "error", err)
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// GetAircraft serves GET /api/v1/aircraft/:icao24
func (h *TrackHandler) GetAircraft(c echo.Context) error {
	if h.registry == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "registry_disabled", "aircraft registry is not configured")
	}

	icao24, err := models.ParseICAO24(c.Param("icao24"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ac, err := h.registry.Lookup(c.Request().Context(), icao24)
	if errors.Is(err, database.ErrAircraftNotFound) {
		return errorJSON(c, http.StatusNotFound, "aircraft_not_found", "no registry record for "+icao24.String())
	}
	if err != nil {
		slog.Error("Aircraft registry lookup failed", "icao24", icao24, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "registry_error", "failed to look up aircraft")
	}

	return c.JSON(http.StatusOK, ac)
}

func HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// fetchErrorJSON maps each FetchError kind to a response the UI can act on
func fetchErrorJSON(c echo.Context, err error) error {
	var fe *opensky.FetchError
	if !errors.As(err, &fe) {
		slog.Error("Unexpected track fetch error", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal_error", "failed to fetch track")
	}

	switch fe.Kind {
	case opensky.KindInvalidInput:
		return errorJSON(c, http.StatusBadRequest, "invalid_request", fe.Error())
	case opensky.KindNetworkError:
		slog.Warn("OpenSky unreachable", "icao24", fe.ICAO24, "error", fe.Err)
		if fe.Timeout() {
			return errorJSON(c, http.StatusGatewayTimeout, "upstream_timeout", "flight data provider timed out")
		}
		return errorJSON(c, http.StatusBadGateway, "upstream_unavailable", "flight data provider is unreachable")
	case opensky.KindRemoteError:
		switch fe.StatusCode {
		case http.StatusNotFound:
			return errorJSON(c, http.StatusNotFound, "track_not_found", "no track found for "+fe.ICAO24.String())
		case http.StatusTooManyRequests:
			return errorJSON(c, http.StatusTooManyRequests, "rate_limited", "flight data provider rate limit reached")
		default:
			slog.Warn("OpenSky returned an error", "icao24", fe.ICAO24, "status", fe.StatusCode, "body", fe.Body)
			return errorJSON(c, http.StatusBadGateway, "upstream_error", "flight data provider returned status "+strconv.Itoa(fe.StatusCode))
		}
	case opensky.KindDecodeError:
		slog.Warn("OpenSky response could not be decoded", "icao24", fe.ICAO24, "error", fe.Err, "body", fe.Body)
		return errorJSON(c, http.StatusBadGateway, "upstream_decode_error", "flight data provider returned an unexpected response")
	default:
		return errorJSON(c, http.StatusInternalServerError, "internal_error", fe.Error())
	}
}

func errorJSON(c echo.Context, code int, kind, message string) error {
	return c.JSON(code, models.ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    code,
	})
}

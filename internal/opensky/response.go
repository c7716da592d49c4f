package opensky

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"flight_tracks/internal/models"
)

// Positional layout of a tracks/all waypoint array
const (
	waypointTime = iota
	waypointLatitude
	waypointLongitude
	waypointBaroAltitude
	waypointTrueTrack
	waypointOnGround
	waypointFields
)

// trackResponse mirrors the tracks/all JSON document
type trackResponse struct {
	ICAO24    *string    `json:"icao24"`
	Callsign  *string    `json:"callsign"`
	StartTime *float64   `json:"startTime"`
	EndTime   *float64   `json:"endTime"`
	Path      []waypoint `json:"path"`
}

// Unix seconds up to the end of year 9999
const maxUnixSeconds = 253402300799

func unixSeconds(name string, v float64) (int64, error) {
	if math.IsNaN(v) || v < 0 || v > maxUnixSeconds {
		return 0, fmt.Errorf("%s %v is not a unix timestamp", name, v)
	}
	return int64(v), nil
}

// waypoint decodes [time, latitude, longitude, baro_altitude, true_track, on_ground]
type waypoint models.TrackPoint

func (w *waypoint) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("waypoint is not an array: %w", err)
	}
	if len(raw) < waypointFields {
		return fmt.Errorf("waypoint has %d fields, want %d", len(raw), waypointFields)
	}

	var t *float64
	if err := json.Unmarshal(raw[waypointTime], &t); err != nil {
		return fmt.Errorf("waypoint time: %w", err)
	}
	if t == nil {
		return fmt.Errorf("waypoint time is null")
	}

	var p models.TrackPoint
	ts, err := unixSeconds("waypoint time", *t)
	if err != nil {
		return err
	}
	p.Time = ts

	floats := []struct {
		idx  int
		name string
		dst  **float64
	}{
		{waypointLatitude, "latitude", &p.Latitude},
		{waypointLongitude, "longitude", &p.Longitude},
		{waypointBaroAltitude, "baro_altitude", &p.BaroAltitude},
		{waypointTrueTrack, "true_track", &p.TrueTrack},
	}
	for _, f := range floats {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return fmt.Errorf("waypoint %s: %w", f.name, err)
		}
	}

	var onGround *bool
	if err := json.Unmarshal(raw[waypointOnGround], &onGround); err != nil {
		return fmt.Errorf("waypoint on_ground: %w", err)
	}
	p.OnGround = onGround != nil && *onGround

	*w = waypoint(p)
	return nil
}

// decodeTrack parses a tracks/all body into a FlightTrack for icao24
func decodeTrack(icao24 models.ICAO24, body []byte) (*models.FlightTrack, error) {
	var resp *trackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("response body is null")
	}
	// Error replies are JSON objects too; a track always names its aircraft and start
	if resp.ICAO24 == nil {
		return nil, fmt.Errorf("response has no icao24")
	}
	if resp.StartTime == nil {
		return nil, fmt.Errorf("response has no startTime")
	}

	start, err := unixSeconds("startTime", *resp.StartTime)
	if err != nil {
		return nil, err
	}
	var end int64
	if resp.EndTime != nil {
		if end, err = unixSeconds("endTime", *resp.EndTime); err != nil {
			return nil, err
		}
	}

	track := &models.FlightTrack{
		ICAO24:    icao24,
		StartTime: start,
		EndTime:   end,
		Path:      make([]models.TrackPoint, len(resp.Path)),
	}
	if resp.Callsign != nil {
		// Callsigns are space padded to 8 characters
		if cs := strings.TrimSpace(*resp.Callsign); cs != "" {
			track.Callsign = &cs
		}
	}
	for i, w := range resp.Path {
		track.Path[i] = models.TrackPoint(w)
	}

	return track, nil
}

package models

// TrackPoint is one waypoint of a flight path.
// Pointer fields are nil when the source did not report a value for the sample.
type TrackPoint struct {
	Time         int64    `json:"time"`          // Unix seconds
	Latitude     *float64 `json:"latitude"`      // WGS-84 degrees
	Longitude    *float64 `json:"longitude"`     // WGS-84 degrees
	BaroAltitude *float64 `json:"baro_altitude"` // Metres
	TrueTrack    *float64 `json:"true_track"`    // Degrees clockwise from north
	OnGround     bool     `json:"on_ground"`
}

// HasPosition reports whether both coordinates are known
func (p TrackPoint) HasPosition() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// FlightTrack is the trajectory of one aircraft, waypoints in the order the source returned them
type FlightTrack struct {
	ICAO24    ICAO24       `json:"icao24"`
	Callsign  *string      `json:"callsign"`
	StartTime int64        `json:"start_time"`
	EndTime   int64        `json:"end_time"` // 0 while the aircraft is still airborne
	Path      []TrackPoint `json:"path"`
}

// InFlight reports whether the track has no end time yet
func (t *FlightTrack) InFlight() bool {
	return t.EndTime == 0
}

// LastPosition returns the most recent waypoint that carries coordinates
func (t *FlightTrack) LastPosition() (TrackPoint, bool) {
	for i := len(t.Path) - 1; i >= 0; i-- {
		if t.Path[i].HasPosition() {
			return t.Path[i], true
		}
	}
	return TrackPoint{}, false
}

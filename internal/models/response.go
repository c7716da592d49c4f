package models

// TrackResponse is the body of GET /api/v1/tracks/:icao24
type TrackResponse struct {
	Track    *FlightTrack `json:"track"`
	Aircraft *Aircraft    `json:"aircraft,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

package models

// Aircraft is a registry record from the OpenSky aircraft database
type Aircraft struct {
	ICAO24           ICAO24 `json:"icao24"`
	Registration     string `json:"registration,omitempty"` // e.g. N12345
	TypeCode         string `json:"typecode,omitempty"`
	ManufacturerName string `json:"manufacturer_name,omitempty"`
	Model            string `json:"model,omitempty"`
	Operator         string `json:"operator,omitempty"`
	OperatorCallsign string `json:"operator_callsign,omitempty"`
	OperatorICAO     string `json:"operator_icao,omitempty"`
	Owner            string `json:"owner,omitempty"`
	Country          string `json:"country,omitempty"`
	Built            string `json:"built,omitempty"` // Year built
}

package models

import (
	"fmt"
	"regexp"
	"strings"
)

var icao24Pattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

// ICAO24 is a 24-bit ICAO aircraft address written as 6 lowercase hex digits
type ICAO24 string

// ParseICAO24 trims and lowercases s before validating it.
// Use it for identifiers typed by people or read from config files.
func ParseICAO24(s string) (ICAO24, error) {
	id := ICAO24(strings.ToLower(strings.TrimSpace(s)))
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the identifier as-is, without any normalization
func (i ICAO24) Validate() error {
	if !icao24Pattern.MatchString(string(i)) {
		return fmt.Errorf("invalid icao24 %q: must be 6 lowercase hex digits", string(i))
	}
	return nil
}

func (i ICAO24) String() string {
	return string(i)
}

// Package tz turns a naive local date-time plus a timezone designator into an
// absolute UTC instant.
//
// Two designator formats are accepted: the legacy fixed offsets "UTC",
// "UTC+H", "UTC-H" and "UTC±H:MM", and IANA identifiers such as
// "America/New_York". IANA zones are resolved against the embedded tz
// database so results do not depend on the host.
package tz

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

var legacyPattern = regexp.MustCompile(`^UTC(?:([+-])(\d{1,2})(?::(\d{2}))?)?$`)

const (
	maxOffsetHours = 14
)

type Kind int

const (
	FixedOffset Kind = iota + 1
	NamedZone
)

// Zone is a parsed designator: either a fixed offset in minutes east of UTC
// or a named IANA location.
type Zone struct {
	Kind Kind

	OffsetMinutes int
	Name          string

	loc *time.Location
}

// Parse resolves a designator. The legacy pattern is checked first so that
// "UTC+1" never reaches the IANA lookup.
func Parse(designator string) (Zone, error) {
	if m := legacyPattern.FindStringSubmatch(designator); m != nil {
		return parseLegacy(designator, m)
	}

	// LoadLocation maps "" and "Local" to UTC and the host zone; neither is a
	// designator a user could have meant.
	if designator == "" || designator == "Local" {
		return Zone{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, designator)
	}

	loc, err := time.LoadLocation(designator)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, designator)
	}
	return Zone{Kind: NamedZone, Name: designator, loc: loc}, nil
}

func parseLegacy(designator string, m []string) (Zone, error) {
	if m[1] == "" {
		return Zone{Kind: FixedOffset, Name: designator}, nil
	}

	hours, _ := strconv.Atoi(m[2])
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	if hours > maxOffsetHours || minutes >= 60 || (hours == maxOffsetHours && minutes > 0) {
		return Zone{}, fmt.Errorf("%w: offset out of range in %q", ErrInvalidTimezone, designator)
	}

	offset := hours*60 + minutes
	if m[1] == "-" {
		offset = -offset
	}
	return Zone{Kind: FixedOffset, OffsetMinutes: offset, Name: designator}, nil
}

// ToUTC interprets the wall clock of local (its own location is ignored) in
// the zone and returns the matching UTC instant.
func (z Zone) ToUTC(local time.Time) time.Time {
	y, mo, d := local.Date()
	h, mi, s := local.Clock()
	ns := local.Nanosecond()

	switch z.Kind {
	case NamedZone:
		return time.Date(y, mo, d, h, mi, s, ns, z.loc).UTC()
	default:
		naive := time.Date(y, mo, d, h, mi, s, ns, time.UTC)
		return naive.Add(-time.Duration(z.OffsetMinutes) * time.Minute)
	}
}

func (z Zone) String() string {
	return z.Name
}

// ToUTC parses the designator and converts local in one step.
func ToUTC(local time.Time, designator string) (time.Time, error) {
	z, err := Parse(designator)
	if err != nil {
		return time.Time{}, err
	}
	return z.ToUTC(local), nil
}

// Package duration extends Go's standard duration parsing with day and
// week units, which are the natural scale for event retention settings.
//
// Examples: "30d", "2w", "1w12h", "90m", "720h".
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

// extendedUnitPattern matches day and week components, with optional
// whitespace between number and unit.
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)

// Parse parses a duration string. In addition to the units
// time.ParseDuration accepts, "d"/"day"/"days" (24 hours) and
// "w"/"wk"/"week"/"weeks" (7 days) are understood.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	var extended time.Duration
	remaining := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		value, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return match
		}
		switch strings.ToLower(parts[2])[0] {
		case 'w':
			extended += time.Duration(value) * Week
		case 'd':
			extended += time.Duration(value) * Day
		}
		return ""
	})

	// time.ParseDuration does not accept whitespace between components.
	remaining = strings.Join(strings.Fields(remaining), "")

	d := extended
	if remaining != "" {
		rest, err := time.ParseDuration(remaining)
		if err != nil {
			return 0, fmt.Errorf("duration: %w", err)
		}
		d += rest
	}

	if negative {
		d = -d
	}
	return d, nil
}

// MustParse is like Parse but panics if the string cannot be parsed.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration using the largest fitting units, omitting
// zero components: 36h becomes "1d12h", 90s becomes "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	units := []struct {
		size   time.Duration
		suffix string
	}{
		{Week, "w"},
		{Day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
		{time.Millisecond, "ms"},
		{time.Microsecond, "µs"},
		{time.Nanosecond, "ns"},
	}

	for _, u := range units {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.suffix)
			d -= n * u.size
		}
	}

	return b.String()
}

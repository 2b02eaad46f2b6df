// Package probe runs and supervises ffmpeg measurement processes. A probe
// consumes a channel's stream without decoding it to a sink, and its stderr
// progress output is parsed into samples the watchdog state machine acts on.
package probe

import (
	"regexp"
	"strconv"
	"time"
)

// speedPattern captures the playback speed from ffmpeg progress lines,
// e.g. "frame= 1352 fps= 25 ... speed=1.01x".
var speedPattern = regexp.MustCompile(`speed=\s*(\d+\.?\d*)x`)

// errorPatterns match the ffmpeg stderr lines that indicate a corrupted
// or undecodable stream.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`corrupt decoded frame`),
	regexp.MustCompile(`error while decoding`),
	regexp.MustCompile(`Invalid data found when processing input`),
	regexp.MustCompile(`Reference \d+ >= \d+`),
	regexp.MustCompile(`concealing \d+ DC, \d+ AC, \d+ MV errors`),
}

// Sample is one observation extracted from a probe's stderr output.
type Sample struct {
	// At is when the sample was observed.
	At time.Time

	// Speed is the playback speed multiplier. Only valid when HasSpeed
	// is true.
	Speed float64

	// HasSpeed reports whether the line carried a speed reading.
	HasSpeed bool

	// Error reports whether the line matched a stream error pattern.
	Error bool

	// Line is the raw stderr line the sample was extracted from.
	Line string
}

// ParseLine extracts a sample from one stderr line. The second return is
// false when the line carries neither a speed reading nor an error.
func ParseLine(line string) (Sample, bool) {
	s := Sample{Line: line}

	if m := speedPattern.FindStringSubmatch(line); m != nil {
		if speed, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.Speed = speed
			s.HasSpeed = true
		}
	}

	for _, pattern := range errorPatterns {
		if pattern.MatchString(line) {
			s.Error = true
			break
		}
	}

	if !s.HasSpeed && !s.Error {
		return Sample{}, false
	}
	return s, true
}

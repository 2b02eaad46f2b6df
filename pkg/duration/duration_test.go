package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Standard Go format
		{"hours", "720h", 720 * time.Hour, false},
		{"minutes", "30m", 30 * time.Minute, false},
		{"seconds", "45s", 45 * time.Second, false},
		{"milliseconds", "100ms", 100 * time.Millisecond, false},
		{"combined standard", "1h30m", 90 * time.Minute, false},

		// Days
		{"days short", "30d", 30 * Day, false},
		{"single day", "1d", Day, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},
		{"days full word", "30 days", 30 * Day, false},
		{"days no space", "30days", 30 * Day, false},

		// Weeks
		{"weeks short", "2w", 2 * Week, false},
		{"wk abbrev", "2wk", 2 * Week, false},
		{"weeks full word", "2 weeks", 2 * Week, false},
		{"weeks days hours", "1w2d12h", Week + 2*Day + 12*time.Hour, false},

		// Edge cases
		{"negative days", "-2d", -2 * Day, false},
		{"surrounding whitespace", "  30d  ", 30 * Day, false},
		{"empty", "", 0, true},
		{"garbage", "banana", 0, true},
		{"unit only", "d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 30*Day, MustParse("30d"))
	assert.Panics(t, func() { MustParse("nope") })
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"seconds", 45 * time.Second, "45s"},
		{"minutes and seconds", 90 * time.Second, "1m30s"},
		{"hours", time.Hour, "1h"},
		{"day and hours", 36 * time.Hour, "1d12h"},
		{"exact week", Week, "1w"},
		{"thirty days", 30 * Day, "4w2d"},
		{"milliseconds", 250 * time.Millisecond, "250ms"},
		{"negative", -2 * Day, "-2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"30d", "1w2d12h", "1h30m", "45s"} {
		d, err := Parse(s)
		require.NoError(t, err)
		back, err := Parse(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, back, "round trip for %q", s)
	}
}

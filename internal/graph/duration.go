package graph

import (
	"regexp"
	"strconv"
	"strings"
)

// durationPattern accepts "<N>h", "<N>m" and "<N>s" segments in that order,
// each optional. Input that matches nothing yields a zero duration.
var durationPattern = regexp.MustCompile(`(?:(\d+)h)?\s*(?:(\d+)m)?\s*(?:(\d+)s)?`)

// FormatDuration renders milliseconds as "{h}h {m}m {s}s". Hours are omitted
// when zero; minutes are omitted when hours and minutes are both zero.
// Non-positive input renders as "0s".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, strconv.FormatInt(h, 10)+"h")
	}
	if h > 0 || m > 0 {
		parts = append(parts, strconv.FormatInt(m, 10)+"m")
	}
	parts = append(parts, strconv.FormatInt(s, 10)+"s")
	return strings.Join(parts, " ")
}

// ParseDuration converts text such as "1h 30m", "45s" or "2m5s" to
// milliseconds. Unrecognised text parses to 0.
func ParseDuration(text string) int64 {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0
	}
	h := atoiOrZero(match[1])
	m := atoiOrZero(match[2])
	s := atoiOrZero(match[3])
	return (h*3600 + m*60 + s) * 1000
}

func atoiOrZero(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

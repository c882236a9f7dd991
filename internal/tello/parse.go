package tello

import (
	"fmt"
	"strconv"
	"strings"
)

// parseNumber extracts the numeric value from a query reply such as "100",
// "10.0" or "8dm", ignoring any unit suffix.
func parseNumber(s string) (float64, error) {
	var b strings.Builder
	for _, c := range s {
		if (c >= '0' && c <= '9') || c == '.' || (c == '-' && b.Len() == 0) {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}
	n, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return n, nil
}

// parseLengthCm parses a length reply in centimeters. The vehicle sometimes
// reports heights in decimeters ("8dm"), which are converted to cm.
func parseLengthCm(s string) (int, error) {
	n, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if strings.Contains(s, "dm") {
		n *= 10
	}
	return int(n), nil
}

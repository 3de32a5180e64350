package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dayWeekUnit = regexp.MustCompile(`(\d+(?:\.\d+)?)([dw])`)

// parseDuration reads env durations. A bare number is seconds ("900"); otherwise
// Go syntax applies, extended with d (24h) and w (7d) units ("1w2d", "1.5d").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	var convErr error
	expanded := dayWeekUnit.ReplaceAllStringFunc(raw, func(m string) string {
		parts := dayWeekUnit.FindStringSubmatch(m)
		n, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			convErr = err
			return m
		}
		hours := n * 24
		if parts[2] == "w" {
			hours *= 7
		}
		return strconv.FormatFloat(hours, 'f', -1, 64) + "h"
	})
	if convErr != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, convErr)
	}
	d, err := time.ParseDuration(expanded)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

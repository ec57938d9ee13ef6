package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const metersPerInch = 0.0254

// ParseHeight converts a stored bar height to meters.
//
// Heights are stored as free text. A value containing ' or "ft" is read as
// feet and inches (14'6, 14'6", 14ft 6in); anything else is read as decimal
// meters with an optional trailing "m". Unparseable values yield 0.
func ParseHeight(raw string) float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}

	if strings.Contains(s, "'") || strings.Contains(s, "ft") {
		return parseFeetInches(s)
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, "m"))
	s = strings.ReplaceAll(s, ",", ".")
	m, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return 0
	}
	return m
}

func parseFeetInches(s string) float64 {
	sep := "'"
	if !strings.Contains(s, sep) {
		sep = "ft"
	}
	parts := strings.SplitN(s, sep, 2)

	feet, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || feet < 0 {
		return 0
	}

	inches := 0.0
	if len(parts) == 2 {
		rest := strings.TrimSpace(parts[1])
		rest = strings.TrimSuffix(rest, "\"")
		rest = strings.TrimSuffix(rest, "in")
		rest = strings.TrimSpace(strings.Trim(rest, "\"'"))
		if rest != "" {
			inches, err = strconv.ParseFloat(rest, 64)
			if err != nil || inches < 0 {
				return 0
			}
		}
	}

	return (feet*12 + inches) * metersPerInch
}

// FormatHeight renders meters as "X.XXm"
func FormatHeight(meters float64) string {
	return fmt.Sprintf("%.2fm", meters)
}

// RoundHeight rounds meters to centimetre precision; used as a bucket key
func RoundHeight(meters float64) float64 {
	return math.Round(meters*100) / 100
}

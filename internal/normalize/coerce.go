package normalize

// coerce.go - per-field value coercion: dates, amounts, enum translations.

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateSplitRe  = regexp.MustCompile(`[/\-.]`)
	nonNumericRe = regexp.MustCompile(`[^0-9.\-]`)
)

// CoerceDate rewrites a date string to YYYY-MM-DD. Already-ISO input passes
// through as-is. D/M/Y, D-M-Y and D.M.Y variants are accepted; 2-digit years
// are assumed to be in the 2000s. Malformed input is returned unchanged with
// ok=false so the caller can keep the value instead of losing data.
func CoerceDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if isoDateRe.MatchString(value) {
		return value, true
	}

	parts := dateSplitRe.Split(value, -1)
	if len(parts) != 3 {
		return value, false
	}
	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		year = "20" + year
	}
	if len(day) == 1 {
		day = "0" + day
	}
	if len(month) == 1 {
		month = "0" + month
	}
	if len(year) != 4 || !allDigits(day) || !allDigits(month) || !allDigits(year) {
		return value, false
	}
	return year + "-" + month + "-" + day, true
}

// CoerceAmount strips everything but digits, dot and minus, then parses.
// Returns ok=false when nothing parseable remains.
func CoerceAmount(value string) (float64, bool) {
	cleaned := nonNumericRe.ReplaceAllString(value, "")
	if cleaned == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// CoerceInteger is CoerceAmount truncated to an int.
func CoerceInteger(value string) (int, bool) {
	num, ok := CoerceAmount(value)
	if !ok {
		return 0, false
	}
	return int(num), true
}

// Translate maps a free-text label through a translation table. Unknown
// labels pass through lower-cased rather than erroring; blank input yields
// the field's default.
func Translate(value string, table map[string]string, def string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	if token, ok := table[trimmed]; ok {
		return token
	}
	return strings.ToLower(trimmed)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

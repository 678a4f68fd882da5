// Package period handles calendar-month period keys used to bucket trading
// volume for batch payout. Keys have the form "YYYY-MM".
package period

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// keyRegex matches a calendar-month key: {YYYY}-{MM}.
// Example: 2025-03
var keyRegex = regexp.MustCompile(`^(\d{4})-(0[1-9]|1[0-2])$`)

// ErrInvalidKey is returned for keys that are not "YYYY-MM".
var ErrInvalidKey = errors.New("period: invalid period key")

const layout = "2006-01"

// Validate checks that key is a well-formed "YYYY-MM" period key.
func Validate(key string) error {
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %s (expected YYYY-MM)", ErrInvalidKey, key)
	}
	return nil
}

// FromTime returns the period key containing t (UTC).
func FromTime(t time.Time) string {
	return t.UTC().Format(layout)
}

// Previous returns the period key of the calendar month before the one
// containing now. This is the default target of a monthly payout run.
func Previous(now time.Time) string {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0).Format(layout)
}

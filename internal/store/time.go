package store

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// TimeLayout is the fixed-width UTC layout of every stored timestamp, so
// text order is time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Format renders t in TimeLayout.
func Format(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now returns the current time formatted for storage.
func Now() string {
	return Format(timeNow())
}

// Package store provides the SQLite key log for keytally.
package store

import (
	"fmt"
	"time"
)

// TimeLayout is the ISO-8601 form of key_log.time_utc. It has a fixed
// width so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Entry is one logged keystroke. Entries are values and are never
// modified once created.
type Entry struct {
	Time  time.Time
	Combo string
}

// NewEntry returns an entry stamped at t in UTC.
func NewEntry(combo string, t time.Time) Entry {
	return Entry{Time: t.UTC(), Combo: combo}
}

// TimeString formats the entry time for the time_utc column.
func (e Entry) TimeString() string {
	return e.Time.UTC().Format(TimeLayout)
}

// ParseTime parses a time_utc value. Both the fixed layout and the
// variable-precision form written by older loggers are accepted.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time_utc %q", s)
}

// KeyCount is a row of the key_counts view.
type KeyCount struct {
	Combo               string
	Count               int64
	Frequency           float64
	CumulativeFrequency float64
}

// GramCount is a row of the bigram_counts or trigram_counts view.
type GramCount struct {
	Gram                string
	Count               int64
	Frequency           float64
	CumulativeFrequency float64
}

// View names a derived aggregation view.
type View string

const (
	ViewKeyCounts     View = "key_counts"
	ViewBigramCounts  View = "bigram_counts"
	ViewTrigramCounts View = "trigram_counts"
)

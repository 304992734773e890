package store

import (
	"errors"
	"fmt"
	"time"

	"smart-stick/tracker/internal/domain"
)

var ErrInvalidDate = errors.New("invalid date")

const dateOnlyLen = len(time.DateOnly)

// Timestamps without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimeRange builds a range from optional query strings. Values may be
// RFC3339 timestamps, zone-less timestamps or bare YYYY-MM-DD dates, the
// last two in UTC; a bare end date covers
// that whole day through 23:59:59.999.
func ParseTimeRange(from, to string) (domain.TimeRange, error) {
	var tr domain.TimeRange

	if from != "" {
		t, err := parseBound(from)
		if err != nil {
			return tr, fmt.Errorf("startDate %q: %w", from, err)
		}
		tr.From = &t
	}

	if to != "" {
		t, err := parseBound(to)
		if err != nil {
			return tr, fmt.Errorf("endDate %q: %w", to, err)
		}
		if len(to) == dateOnlyLen {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		tr.To = &t
	}

	return tr, nil
}

func parseBound(s string) (time.Time, error) {
	if len(s) == dateOnlyLen {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return time.Time{}, ErrInvalidDate
		}
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

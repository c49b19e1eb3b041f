package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// naiveLayout is the ISO-8601 form without zone offset used throughout
// events.json ("2025-06-14T10:00:00").
const naiveLayout = "2006-01-02T15:04:05.999999"

// zone-less layouts accepted on input, tried in order.
var naiveInputLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Timestamp is an ISO-8601 point in time that remembers whether it was
// written with a zone offset, so a file round-trips without gaining one.
type Timestamp struct {
	time.Time
	naive bool
}

// Naive returns a zone-less Timestamp for the wall clock of t.
func Naive(t time.Time) Timestamp {
	return Timestamp{
		Time:  time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC),
		naive: true,
	}
}

// At returns a Timestamp carrying t's zone offset.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// IsNaive reports whether the timestamp carries no zone offset.
func (ts Timestamp) IsNaive() bool {
	return ts.naive
}

// ParseTimestamp accepts RFC 3339 and the common zone-less ISO-8601 forms.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{Time: t}, nil
	}
	for _, layout := range naiveInputLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t, naive: true}, nil
		}
	}
	return Timestamp{}, errors.New("invalid ISO-8601 timestamp: " + s)
}

// String formats the timestamp the way it is persisted.
func (ts Timestamp) String() string {
	if ts.naive {
		return ts.Time.Format(naiveLayout)
	}
	return ts.Time.Format(time.RFC3339Nano)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("timestamp must be a string")
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

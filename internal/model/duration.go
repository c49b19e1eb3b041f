package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationInstant is the duration label for point-in-time commitments.
const DurationInstant = "instant"

// FormatDuration renders the span between start and end as the
// human-readable label stored in Event.Duration:
//
//	< 1 min       -> "instant"
//	< 60 min      -> "45 min"
//	whole hours   -> "2 hour"
//	otherwise     -> "1 hr 30 min"
func FormatDuration(start, end time.Time) string {
	total := int(end.Sub(start) / time.Minute)
	switch {
	case total < 1:
		return DurationInstant
	case total < 60:
		return fmt.Sprintf("%d min", total)
	case total%60 == 0:
		return fmt.Sprintf("%d hour", total/60)
	default:
		return fmt.Sprintf("%d hr %d min", total/60, total%60)
	}
}

// ParseDuration is the inverse of FormatDuration. Unrecognised labels
// yield zero, the same as "instant".
func ParseDuration(label string) time.Duration {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == DurationInstant {
		return 0
	}

	var hours, minutes int
	if h, rest, ok := strings.Cut(label, "hr"); ok {
		hours = leadingInt(h)
		minutes = leadingInt(rest)
	} else if h, _, ok := strings.Cut(label, "hour"); ok {
		hours = leadingInt(h)
	} else if m, _, ok := strings.Cut(label, "min"); ok {
		minutes = leadingInt(m)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

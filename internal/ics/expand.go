package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "notifsync/internal/log"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the occurrences that are produced.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means the default.
	MaxOccurrencesPerEvent int
}

// Occurrence is one concrete instance of a (possibly recurring) VEVENT.
type Occurrence struct {
	Event ParsedEvent
	Start time.Time
	End   time.Time

	// Slot is the start the rule assigned to this instance; it differs
	// from Start when an override moved the instance.
	Slot time.Time
}

// InstanceKey identifies an occurrence across imports: the UID plus the
// slot start in UTC.
func (o Occurrence) InstanceKey() string {
	return o.Event.UID + "#" + o.Slot.UTC().Format(time.RFC3339)
}

// ExpandOccurrences expands parsed VEVENTs into the occurrences that fall
// inside the configured range, honoring RRULE, EXDATE and RECURRENCE-ID
// overrides.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) ([]Occurrence, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	base := make([]ParsedEvent, 0, len(events))
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		base = append(base, ev)
	}

	out := make([]Occurrence, 0)
	for _, ev := range base {
		if ev.RawRRule == "" {
			out = append(out, expandSingle(ev, overrides[ev.UID], cfg)...)
			continue
		}
		out = append(out, expandRecurring(ev, overrides[ev.UID], cfg)...)
	}
	return out, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	start, end, src := ev.Start, ev.End, ev
	if o, ok := findOverride(overrides, ev.Start); ok {
		start, end, src = o.Start, o.End, o
	}
	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{{Event: src, Start: start, End: end, Slot: ev.Start}}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("expand: bad RRULE, skipping event", "uid", ev.UID, "rrule", ev.RawRRule, "reason", err.Error())
		return nil
	}
	r.DTStart(ev.Start)

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Instances that started up to one span before the window still overlap it.
	loc := ev.Start.Location()
	span := ev.End.Sub(ev.Start)
	times := set.Between(cfg.RangeStart.Add(-span).In(loc), cfg.RangeEnd.In(loc), true)
	if len(times) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("expand: truncated occurrences", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		times = times[:cfg.MaxOccurrencesPerEvent]
	}

	used := make(map[int]bool, len(overrides))
	out := make([]Occurrence, 0, len(times))
	for _, t := range times {
		occ := Occurrence{Event: ev, Start: t, End: t.Add(span), Slot: t}
		if i, ok := overrideIndex(overrides, t); ok {
			o := overrides[i]
			used[i] = true
			occ.Event, occ.Start, occ.End = o, o.Start, o.End
		}
		if overlaps(occ.Start, occ.End, cfg.RangeStart, cfg.RangeEnd) {
			out = append(out, occ)
		}
	}

	// Overrides whose slot lies outside the window may have been moved into it.
	for i, o := range overrides {
		if used[i] || o.Recurrence == nil {
			continue
		}
		if !overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		slot := o.Recurrence.In(loc)
		if len(set.Between(slot, slot, true)) == 0 {
			continue
		}
		out = append(out, Occurrence{Event: o, Start: o.Start, End: o.End, Slot: slot})
	}
	return out
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	if i, ok := overrideIndex(overrides, start); ok {
		return overrides[i], true
	}
	return ParsedEvent{}, false
}

func overrideIndex(overrides []ParsedEvent, start time.Time) (int, bool) {
	for i, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return i, true
		}
	}
	return -1, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

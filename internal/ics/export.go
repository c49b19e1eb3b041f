package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"notifsync/internal/model"
)

const productID = "-//notifsync//commitments//EN"

// BuildFeed renders the live (non-deleted) commitments as an iCalendar
// feed. Zone-less timestamps are read as wall-clock times in loc.
func BuildFeed(events []model.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	now := time.Now().UTC()
	for _, ev := range events {
		if ev.Deleted {
			continue
		}
		start := inZone(ev.DateTime, loc)
		end := start.Add(model.ParseDuration(ev.Duration))

		vev := cal.AddEvent(ev.NotificationID + "@notifsync")
		vev.SetDtStampTime(now)
		vev.SetCreatedTime(inZone(ev.CreatedAt, loc))
		vev.SetStartAt(start)
		vev.SetEndAt(end)
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		if ev.Location != "" && !model.IsNotApplicable(ev.Location) {
			vev.SetLocation(ev.Location)
		}
		if ev.CommitmentType != "" {
			vev.SetProperty(ical.ComponentPropertyCategories, ev.CommitmentType)
		}
	}
	return cal.Serialize()
}

func inZone(ts model.Timestamp, loc *time.Location) time.Time {
	if !ts.IsNaive() {
		return ts.Time
	}
	t := ts.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notifsync/internal/config"
	appLog "notifsync/internal/log"
	"notifsync/internal/model"
)

// defaultSourceApp labels imported commitments whose source has no name.
const defaultSourceApp = "Calendar"

// ErrParse marks a payload that is not a readable calendar.
var ErrParse = errors.New("unreadable calendar")

// Merger is the part of the event store the importer writes to.
type Merger interface {
	Merge(events []model.Event) (added, updated int, err error)
}

// Result counts what an import changed.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Importer turns ICS calendars into commitments: parse, expand recurrences
// inside [now-1d, now+horizon], convert and merge into the store keyed by
// notification id.
type Importer struct {
	store   Merger
	fetcher *Fetcher
	sources []Source
	horizon time.Duration
	loc     *time.Location
	now     func() time.Time
}

// NewImporter builds an importer. fetcher may be nil when only uploaded
// bodies are imported.
func NewImporter(store Merger, fetcher *Fetcher, sources []Source, horizonDays int, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &Importer{
		store:   store,
		fetcher: fetcher,
		sources: sources,
		horizon: time.Duration(horizonDays) * 24 * time.Hour,
		loc:     loc,
		now:     time.Now,
	}
}

// SourcesFromConfig converts configured subscriptions, skipping entries
// without a URL. IDs default to the name, then the URL.
func SourcesFromConfig(entries []config.ICSConfig) []Source {
	out := make([]Source, 0, len(entries))
	for _, c := range entries {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		out = append(out, Source{ID: id, Name: c.Name, URL: c.URL})
	}
	return out
}

// Sources returns the configured subscriptions.
func (im *Importer) Sources() []Source {
	return im.sources
}

// ImportBody imports one ICS payload.
func (im *Importer) ImportBody(src Source, body []byte) (Result, error) {
	parsed, err := ParseICS(src, body)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrParse, src.ID, err)
	}

	now := im.now()
	occs, err := ExpandOccurrences(parsed, ExpandConfig{
		RangeStart: now.Add(-24 * time.Hour),
		RangeEnd:   now.Add(im.horizon),
	})
	if err != nil {
		return Result{}, err
	}

	events := make([]model.Event, 0, len(occs))
	for _, occ := range occs {
		events = append(events, im.toEvent(occ, now))
	}

	added, updated, err := im.store.Merge(events)
	if err != nil {
		return Result{Added: added, Updated: updated}, err
	}
	appLog.Info("ics import completed", "id", src.ID, "occurrences", len(occs), "added", added, "updated", updated)
	return Result{Added: added, Updated: updated}, nil
}

// RefreshAll fetches and imports every configured subscription. A failing
// source is logged and does not stop the others.
func (im *Importer) RefreshAll(ctx context.Context) (Result, []error) {
	var total Result
	var errs []error
	if im.fetcher == nil {
		return total, nil
	}
	for _, src := range im.sources {
		body, err := im.fetcher.Fetch(ctx, src)
		if err != nil {
			appLog.Error("ics refresh: fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, err)
			continue
		}
		res, err := im.ImportBody(src, body)
		total.Added += res.Added
		total.Updated += res.Updated
		if err != nil {
			appLog.Error("ics refresh: import failed", err, "id", src.ID)
			errs = append(errs, err)
		}
	}
	return total, errs
}

func (im *Importer) toEvent(occ Occurrence, now time.Time) model.Event {
	start := occ.Start.In(im.loc)
	end := occ.End.In(im.loc)

	title := occ.Event.Summary
	if title == "" {
		title = "(untitled)"
	}
	location := occ.Event.Location
	if location == "" {
		location = "N/A"
	}
	sourceApp := occ.Event.Source.Name
	if sourceApp == "" {
		sourceApp = defaultSourceApp
	}

	return model.Event{
		Title:          title,
		Description:    occ.Event.Description,
		DateTime:       model.Naive(start),
		Location:       location,
		SourceApp:      sourceApp,
		NotificationID: occ.InstanceKey(),
		CommitmentType: "event",
		CreatedAt:      model.Naive(now.In(im.loc)),
		Duration:       model.FormatDuration(start, end),
	}
}

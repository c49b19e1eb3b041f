package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appLog "notifsync/internal/log"
	"notifsync/internal/model"
)

func init() {
	appLog.SetLevel(appLog.LevelError)
}

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sampleICS = calendar(
	"BEGIN:VEVENT",
	"UID:standup-1",
	"DTSTAMP:20250601T000000Z",
	"DTSTART:20250602T090000Z",
	"DTEND:20250602T093000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20250609T090000Z",
	"SUMMARY:Standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup-1",
	"DTSTAMP:20250601T000000Z",
	"RECURRENCE-ID:20250616T090000Z",
	"DTSTART:20250616T100000Z",
	"DTEND:20250616T103000Z",
	"SUMMARY:Moved standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:dentist-1",
	"DTSTAMP:20250601T000000Z",
	"DTSTART:20250610T150000Z",
	"DTEND:20250610T154500Z",
	"SUMMARY:Dentist",
	"LOCATION:Main St",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:later-1",
	"DTSTAMP:20250601T000000Z",
	"DTSTART:20250801T150000Z",
	"DTEND:20250801T160000Z",
	"SUMMARY:Too far ahead",
	"END:VEVENT",
)

type fakeMerger struct {
	got []model.Event
}

func (f *fakeMerger) Merge(events []model.Event) (int, int, error) {
	f.got = append(f.got, events...)
	return len(events), 0, nil
}

func newTestImporter(m Merger) *Importer {
	im := NewImporter(m, nil, nil, 30, time.UTC)
	im.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return im
}

func TestImportBodyExpandsRecurrences(t *testing.T) {
	m := &fakeMerger{}
	im := newTestImporter(m)

	res, err := im.ImportBody(Source{ID: "work", Name: "Work Calendar"}, sampleICS)
	if err != nil {
		t.Fatalf("ImportBody: %v", err)
	}
	if res.Added != 4 {
		t.Fatalf("added = %d, want 4", res.Added)
	}

	sort.Slice(m.got, func(i, j int) bool { return m.got[i].DateTime.Before(m.got[j].DateTime.Time) })
	want := []struct {
		title    string
		start    string
		duration string
	}{
		{"Standup", "2025-06-02T09:00:00", "30 min"},
		{"Dentist", "2025-06-10T15:00:00", "45 min"},
		{"Moved standup", "2025-06-16T10:00:00", "30 min"},
		{"Standup", "2025-06-23T09:00:00", "30 min"},
	}
	for i, w := range want {
		ev := m.got[i]
		if ev.Title != w.title || ev.DateTime.String() != w.start || ev.Duration != w.duration {
			t.Errorf("event %d = %q %s %q, want %q %s %q", i, ev.Title, ev.DateTime, ev.Duration, w.title, w.start, w.duration)
		}
		if ev.SourceApp != "Work Calendar" || ev.CommitmentType != "event" {
			t.Errorf("event %d source/type = %q/%q", i, ev.SourceApp, ev.CommitmentType)
		}
	}
	if m.got[0].Location != "N/A" || m.got[1].Location != "Main St" {
		t.Errorf("locations = %q, %q", m.got[0].Location, m.got[1].Location)
	}
	if m.got[2].NotificationID != "standup-1#2025-06-16T09:00:00Z" {
		t.Errorf("override should keep its slot key, got %q", m.got[2].NotificationID)
	}

	seen := map[string]bool{}
	for _, ev := range m.got {
		if seen[ev.NotificationID] {
			t.Errorf("duplicate notification id %q", ev.NotificationID)
		}
		seen[ev.NotificationID] = true
	}
}

func TestExpandWindowEdges(t *testing.T) {
	body := calendar(
		// Nightly 23:00-02:00, three nights from June 1.
		"BEGIN:VEVENT",
		"UID:night-1",
		"DTSTAMP:20250601T000000Z",
		"DTSTART:20250601T230000Z",
		"DTEND:20250602T020000Z",
		"RRULE:FREQ=DAILY;COUNT=3",
		"SUMMARY:Night shift",
		"END:VEVENT",
		// Weekly on Mondays; the June 23 instance is moved to June 12.
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20250601T000000Z",
		"DTSTART:20250602T090000Z",
		"DTEND:20250602T093000Z",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"SUMMARY:Weekly",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20250601T000000Z",
		"RECURRENCE-ID:20250623T090000Z",
		"DTSTART:20250612T090000Z",
		"DTEND:20250612T093000Z",
		"SUMMARY:Weekly moved early",
		"END:VEVENT",
	)
	parsed, err := ParseICS(Source{ID: "edges"}, body)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}

	cases := []struct {
		name      string
		start     time.Time
		end       time.Time
		wantTitle string
		wantStart time.Time
		wantSlot  time.Time
	}{
		{
			name:      "instance still running at window start",
			start:     time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			end:       time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
			wantTitle: "Night shift",
			wantStart: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC),
			wantSlot:  time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC),
		},
		{
			name:      "override moved into window",
			start:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			end:       time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC),
			wantTitle: "Weekly moved early",
			wantStart: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC),
			wantSlot:  time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			occs, err := ExpandOccurrences(parsed, ExpandConfig{RangeStart: tc.start, RangeEnd: tc.end})
			if err != nil {
				t.Fatalf("ExpandOccurrences: %v", err)
			}
			if len(occs) != 1 {
				t.Fatalf("got %d occurrences, want 1: %+v", len(occs), occs)
			}
			o := occs[0]
			if o.Event.Summary != tc.wantTitle || !o.Start.Equal(tc.wantStart) || !o.Slot.Equal(tc.wantSlot) {
				t.Errorf("occurrence = %q start=%v slot=%v", o.Event.Summary, o.Start, o.Slot)
			}
		})
	}
}

func TestImportBodyRejectsGarbage(t *testing.T) {
	im := newTestImporter(&fakeMerger{})
	_, err := im.ImportBody(Source{ID: "upload"}, []byte("   "))
	if !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestParseFallbackUIDIsStable(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"DTSTAMP:20250601T000000Z",
		"DTSTART:20250610T150000Z",
		"SUMMARY:No uid",
		"END:VEVENT",
	)
	a, err := ParseICS(Source{ID: "x"}, body)
	if err != nil || len(a) != 1 {
		t.Fatalf("ParseICS: %v (%d events)", err, len(a))
	}
	b, _ := ParseICS(Source{ID: "x"}, body)
	if a[0].UID == "" || a[0].UID != b[0].UID {
		t.Errorf("fallback UIDs %q and %q should match", a[0].UID, b[0].UID)
	}
	if !a[0].End.Equal(a[0].Start) {
		t.Errorf("missing DTEND should collapse to start")
	}
}

func TestBuildFeed(t *testing.T) {
	at := model.Naive(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	events := []model.Event{
		{ID: 1, Title: "Team Standup", DateTime: at, CreatedAt: at, Location: "Zoom", NotificationID: "n1", CommitmentType: "meeting", Duration: "30 min"},
		{ID: 2, Title: "Old thing", DateTime: at, CreatedAt: at, Location: "N/A", NotificationID: "n2", CommitmentType: "task", Duration: "instant", Deleted: true},
	}

	feed := BuildFeed(events, time.UTC)
	if !strings.Contains(feed, "SUMMARY:Team Standup") {
		t.Errorf("feed missing summary:\n%s", feed)
	}
	if strings.Contains(feed, "Old thing") {
		t.Errorf("deleted events must not be exported:\n%s", feed)
	}
	if !strings.Contains(feed, "CATEGORIES:meeting") {
		t.Errorf("feed missing category:\n%s", feed)
	}

	parsed, err := ParseICS(Source{ID: "feed"}, []byte(feed))
	if err != nil {
		t.Fatalf("feed does not parse: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed %d events, want 1", len(parsed))
	}
	p := parsed[0]
	if p.UID != "n1@notifsync" {
		t.Errorf("UID = %q", p.UID)
	}
	if !p.Start.Equal(at.Time) || p.End.Sub(p.Start) != 30*time.Minute {
		t.Errorf("start/end = %v/%v", p.Start, p.End)
	}
}

func TestFetcherUsesCache(t *testing.T) {
	var hits atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(sampleICS)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "work", URL: srv.URL + "/private/token.ics"}

	for i := 0; i < 2; i++ {
		body, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if string(body) != string(sampleICS) {
			t.Fatalf("fetch %d returned unexpected body", i)
		}
	}

	fail.Store(true)
	body, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("fetch with failing upstream: %v", err)
	}
	if string(body) != string(sampleICS) {
		t.Errorf("expected cached body on upstream failure")
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://example.com/path/private.ics?token=abc"); got != "https://example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
	if got := redactURL("not a url"); got != "ics://...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}

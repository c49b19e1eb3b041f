package store

import (
	"time"

	"github.com/google/uuid"

	"notifsync/internal/model"
)

type seedEntry struct {
	title          string
	description    string
	sourceApp      string
	location       string
	commitmentType string
	start          string
	end            string // empty means instant
}

var seedEntries = []seedEntry{
	{"New subscriber on Twitch!", "New subscriber on Twitch! Live event is happening now with limited seats. Join quickly to participate in real-time.", "System", "Cafeteria", "meeting", "2025-06-14T10:00:00", "2025-06-14T11:00:00"},
	{"Team Standup Meeting", "Daily team sync-up to discuss blockers and progress. Please be on time.", "Slack", "Zoom", "meeting", "2025-06-14T10:30:00", "2025-06-14T11:00:00"},
	{"Web3 Panel Discussion", "Industry leaders talk about the future of decentralized internet.", "Eventbrite", "Auditorium Hall A", "event", "2025-06-14T12:00:00", "2025-06-14T14:00:00"},
	{"Office Birthday Bash", "Celebrate Arjun's birthday with snacks, music, and fun games!", "Calendar", "Pantry Area", "party", "2025-06-14T16:00:00", "2025-06-14T17:30:00"},
	{"Assignment Submission Deadline", "Final project report due tonight. No late submissions allowed.", "Classroom", "Google Classroom", "deadline", "2025-06-14T23:59:00", "2025-06-15T00:00:00"},
	{"Drink Water Reminder", "Stay hydrated! It's been 2 hours since your last glass.", "HealthSync", "N/A", "reminder", "2025-06-14T11:00:00", ""},
	{"Clean Inbox", "Sort and archive unread emails before the weekly sync.", "Todoist", "Desktop", "task", "2025-06-14T14:00:00", "2025-06-14T14:30:00"},
	{"New Version Available", "NotifSync v2.0 is now available. Update now for new features and bug fixes.", "System", "App Store", "update", "2025-06-14T13:00:00", ""},
	{"Happy Friendship Day!", "Celebrate the people who've stood by you. Send a message now!", "Messages", "WhatsApp", "greeting", "2025-06-14T09:00:00", ""},
	{"Data Structures Lecture", "Week 5: Binary Trees and Heaps. Lecture starts at 2:30 PM sharp.", "MyUniversity", "Lecture Hall B2", "education", "2025-06-14T14:30:00", "2025-06-14T16:00:00"},
	{"Mindfulness Session", "Take 10 minutes to breathe, relax, and reflect. Your mental health matters.", "Headspace", "Meditation App", "wellness", "2025-06-14T15:00:00", "2025-06-14T15:15:00"},
}

// DefaultSeed returns the built-in demo dataset, ids 1..11, each with a
// fresh notification id. Records come back un-reminded; the store's load
// policy marks them reminded.
func DefaultSeed() []model.Event {
	out := make([]model.Event, 0, len(seedEntries))
	for i, e := range seedEntries {
		start := mustNaive(e.start)
		duration := model.DurationInstant
		if e.end != "" {
			duration = model.FormatDuration(start.Time, mustNaive(e.end).Time)
		}
		out = append(out, model.Event{
			ID:             i + 1,
			Title:          e.title,
			Description:    e.description,
			DateTime:       start,
			Location:       e.location,
			SourceApp:      e.sourceApp,
			NotificationID: uuid.NewString(),
			CommitmentType: e.commitmentType,
			CreatedAt:      start,
			Duration:       duration,
		})
	}
	return out
}

func mustNaive(s string) model.Timestamp {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		panic("store: bad seed timestamp " + s)
	}
	return model.Naive(t)
}

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event is one notification-derived commitment (meeting, deadline,
// reminder, ...). ID zero means "not assigned yet".
type Event struct {
	ID             int        `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DateTime       Timestamp  `json:"date_time"`
	Location       string     `json:"location"`
	SourceApp      string     `json:"source_app"`
	NotificationID string     `json:"notification_id"`
	CommitmentType string     `json:"commitment_type"`
	CreatedAt      Timestamp  `json:"created_at"`
	Reminded       bool       `json:"reminded"`
	Duration       string     `json:"duration"`
	DatePresent    *Timestamp `json:"date_present"`
	Deleted        bool       `json:"deleted"`
}

// requiredFields lists every key an incoming object must carry.
var requiredFields = []string{
	"title",
	"description",
	"date_time",
	"location",
	"source_app",
	"notification_id",
	"commitment_type",
	"created_at",
	"reminded",
	"duration",
	"deleted",
}

// ErrInvalid is matched by every ValidationError.
var ErrInvalid = errors.New("invalid event")

// ValidationError describes the first schema violation found in an object.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid event: %s", e.Reason)
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// IsNotApplicable reports whether s is one of the "no date" sentinels
// ("na", "n/a" or empty, any case).
func IsNotApplicable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "n/a":
		return true
	}
	return false
}

// ParseEvent validates a single JSON object against the event schema and
// materializes it. date_present sentinels collapse to nil; an absent or
// null id leaves ID at zero.
func ParseEvent(data []byte) (Event, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return Event{}, err
	}
	return materialize(raw)
}

// ParseStoredEvent is ParseEvent for records read back from the events
// file. A reminded value that is missing, null or false is rewritten to
// true before validation.
func ParseStoredEvent(data []byte) (Event, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return Event{}, err
	}
	if v, ok := raw["reminded"]; !ok || isNull(v) || bytes.Equal(bytes.TrimSpace(v), []byte("false")) {
		raw["reminded"] = json.RawMessage("true")
	}
	return materialize(raw)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Reason: "not a JSON object: " + err.Error()}
	}
	if raw == nil {
		return nil, &ValidationError{Reason: "not a JSON object"}
	}
	return raw, nil
}

func materialize(raw map[string]json.RawMessage) (Event, error) {
	for _, name := range requiredFields {
		v, ok := raw[name]
		if !ok {
			return Event{}, &ValidationError{Field: name, Reason: "field required"}
		}
		if isNull(v) {
			return Event{}, &ValidationError{Field: name, Reason: "must not be null"}
		}
	}

	if v, ok := raw["date_present"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil && IsNotApplicable(s) {
			delete(raw, "date_present")
		}
	}

	var ev Event
	for name, v := range raw {
		if isNull(v) {
			continue
		}
		if err := ev.setField(name, v); err != nil {
			return Event{}, &ValidationError{Field: name, Reason: err.Error()}
		}
	}
	return ev, nil
}

func (ev *Event) setField(name string, v json.RawMessage) error {
	var target any
	switch name {
	case "id":
		target = &ev.ID
	case "title":
		target = &ev.Title
	case "description":
		target = &ev.Description
	case "date_time":
		target = &ev.DateTime
	case "location":
		target = &ev.Location
	case "source_app":
		target = &ev.SourceApp
	case "notification_id":
		target = &ev.NotificationID
	case "commitment_type":
		target = &ev.CommitmentType
	case "created_at":
		target = &ev.CreatedAt
	case "reminded":
		target = &ev.Reminded
	case "duration":
		target = &ev.Duration
	case "date_present":
		ts := new(Timestamp)
		if err := json.Unmarshal(v, ts); err != nil {
			return err
		}
		ev.DatePresent = ts
		return nil
	case "deleted":
		target = &ev.Deleted
	default:
		// Unknown keys are ignored.
		return nil
	}
	if err := json.Unmarshal(v, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return err
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Equal reports whether two records carry the same field values.
// Timestamps compare by their persisted form.
func (ev Event) Equal(other Event) bool {
	if ev.DateTime.String() != other.DateTime.String() || ev.CreatedAt.String() != other.CreatedAt.String() {
		return false
	}
	switch {
	case ev.DatePresent == nil && other.DatePresent == nil:
	case ev.DatePresent == nil || other.DatePresent == nil:
		return false
	case ev.DatePresent.String() != other.DatePresent.String():
		return false
	}
	return ev.ID == other.ID &&
		ev.Title == other.Title &&
		ev.Description == other.Description &&
		ev.Location == other.Location &&
		ev.SourceApp == other.SourceApp &&
		ev.NotificationID == other.NotificationID &&
		ev.CommitmentType == other.CommitmentType &&
		ev.Reminded == other.Reminded &&
		ev.Duration == other.Duration &&
		ev.Deleted == other.Deleted
}

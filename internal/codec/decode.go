package codec

import (
	"fmt"
	"io"

	appLog "notifsync/internal/log"
	"notifsync/internal/model"
)

// maxSnippet bounds how much of a rejected element ends up in the logs.
const maxSnippet = 200

// Diagnostic describes one array element that was skipped during Decode.
type Diagnostic struct {
	Offset  int64  `json:"offset"`
	Reason  string `json:"reason"`
	Snippet string `json:"snippet"`
}

// DecodeReport summarizes a Decode run.
type DecodeReport struct {
	Parsed  int          `json:"parsed"`
	Skipped []Diagnostic `json:"skipped,omitempty"`
}

// Decode reads a JSON array of event objects, parsing each element
// independently. Elements that are not valid JSON or fail schema validation
// are logged and skipped. A missing or null reminded is migrated to true
// before validation, and every accepted record goes through Normalize.
//
// The returned error is non-nil only for read failures; malformed content
// never aborts the decode.
func Decode(r io.Reader) ([]model.Event, *DecodeReport, error) {
	report := &DecodeReport{}
	events := make([]model.Event, 0)

	sc := NewScanner(r)
	for sc.Scan() {
		raw := sc.Bytes()
		ev, err := model.ParseStoredEvent(raw)
		if err != nil {
			d := Diagnostic{
				Offset:  sc.Offset(),
				Reason:  err.Error(),
				Snippet: snippet(raw),
			}
			report.Skipped = append(report.Skipped, d)
			appLog.Warn("skipping malformed event", "offset", d.Offset, "reason", d.Reason, "data", d.Snippet)
			continue
		}
		Normalize(&ev)
		events = append(events, ev)
		report.Parsed++
	}
	if err := sc.Err(); err != nil {
		return events, report, fmt.Errorf("read events: %w", err)
	}
	return events, report, nil
}

// Normalize applies the load-time policy to a record: every event that has
// not been reminded yet is marked reminded. This runs on every load,
// including watcher reloads.
func Normalize(ev *model.Event) {
	if !ev.Reminded {
		ev.Reminded = true
	}
}

func snippet(b []byte) string {
	if len(b) <= maxSnippet {
		return string(b)
	}
	return string(b[:maxSnippet]) + "..."
}

package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"notifsync/internal/model"
)

// Encode writes events as a pretty-printed JSON array (2-space indent), one
// element per record, in the order given. It always produces the whole
// document:
//
//	[
//	{
//	  "id": 1,
//	  ...
//	},
//	{
//	  ...
//	}
//	]
func Encode(w io.Writer, events []model.Event) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("[\n"); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	for i := range events {
		buf.Reset()
		if err := enc.Encode(&events[i]); err != nil {
			return err
		}
		// Encoder terminates each value with a newline.
		if _, err := bw.Write(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
			return err
		}
		sep := "\n"
		if i < len(events)-1 {
			sep = ",\n"
		}
		if _, err := bw.WriteString(sep); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("]"); err != nil {
		return err
	}
	return bw.Flush()
}

// Package codec reads and writes the events.json durable file: a JSON array
// of event objects, one record per element.
//
// Decoding does not parse the file as a single document. A Scanner splits the
// array into elements and each element is parsed on its own, so one corrupt
// record costs that record only.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

type scanState int

const (
	stateOutside scanState = iota // between elements
	stateElement                  // inside an element, tracking brace depth
	stateString                   // inside a quoted string
	stateEscape                   // backslash seen inside a string
)

// Scanner splits a JSON array into its top-level elements without parsing
// them. Only braces, quotes, backslashes, commas and the closing bracket are
// structural; all of them are ASCII, so scanning bytes is safe for UTF-8.
//
// An element ends when its outermost object closes, or at a comma or ']'
// seen at depth 0. A truncated trailing element is still returned so the
// caller can report it.
type Scanner struct {
	r      *bufio.Reader
	state  scanState
	depth  int
	pos    int64
	opened bool // leading '[' consumed
	closed bool // closing ']' seen

	elem  bytes.Buffer
	start int64
	err   error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Scan advances to the next element. It returns false at the end of the
// array, at EOF, or on a read error (see Err).
func (s *Scanner) Scan() bool {
	s.elem.Reset()
	if s.closed || s.err != nil {
		return false
	}

	for {
		c, err := s.r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			// EOF inside an element hands back what was collected.
			return s.state != stateOutside && s.finish()
		}
		s.pos++

		switch s.state {
		case stateOutside:
			switch {
			case isSpace(c) || c == ',':
				continue
			case c == '[' && !s.opened:
				s.opened = true
				continue
			case c == ']':
				s.closed = true
				return false
			}
			s.opened = true
			s.elem.Reset()
			s.start = s.pos - 1
			s.state = stateElement
			s.depth = 0
			if s.feed(c) {
				return true
			}

		case stateString:
			s.elem.WriteByte(c)
			switch c {
			case '\\':
				s.state = stateEscape
			case '"':
				s.state = stateElement
			}

		case stateEscape:
			s.elem.WriteByte(c)
			s.state = stateString

		case stateElement:
			if s.feed(c) {
				return true
			}
		}
	}
}

// feed consumes one byte in stateElement and reports whether it completed
// the current element.
func (s *Scanner) feed(c byte) bool {
	switch c {
	case '"':
		s.elem.WriteByte(c)
		s.state = stateString
		return false
	case '{':
		s.depth++
	case '}':
		s.depth--
		if s.depth <= 0 {
			s.elem.WriteByte(c)
			return s.finish()
		}
	case ',':
		if s.depth == 0 {
			return s.finish()
		}
	case ']':
		if s.depth == 0 {
			s.closed = true
			return s.finish()
		}
	}
	s.elem.WriteByte(c)
	return false
}

func (s *Scanner) finish() bool {
	s.state = stateOutside
	s.depth = 0
	return len(bytes.TrimSpace(s.elem.Bytes())) > 0
}

// Bytes returns the current element. The slice is only valid until the
// next call to Scan.
func (s *Scanner) Bytes() []byte {
	return bytes.TrimSpace(s.elem.Bytes())
}

// Offset is the byte offset of the current element in the input.
func (s *Scanner) Offset() int64 {
	return s.start
}

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error {
	return s.err
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Package sse implements a minimal byte-oriented Server-Sent-Events
// scanner for upstream bodies. It is deliberately hand-rolled rather
// than delegated to an SDK's internal transport (see DESIGN.md): the
// gateway needs to re-emit translated events while the body is still
// arriving, which requires owning the line buffer directly.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded SSE event: a possibly-empty event name and the
// concatenation of its data lines.
type Event struct {
	Name string
	Data string
}

// Done is the sentinel event value carried once a stream emits
// `data: [DONE]`.
const Done = "[DONE]"

// Scanner reads SSE events one at a time from an upstream body.
type Scanner struct {
	r         *bufio.Reader
	eventName string
	dataLines []string
}

// NewScanner wraps an upstream response body.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next decoded event, or io.EOF when the stream ends
// without a trailing blank line to flush a partial event.
func (s *Scanner) Next() (Event, error) {
	for {
		line, err := s.r.ReadString('\n')
		if len(line) == 0 && err != nil {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			// blank line: dispatch accumulated event, if any.
			if len(s.dataLines) == 0 {
				if err != nil {
					return Event{}, err
				}
				continue
			}
			ev := Event{Name: s.eventName, Data: strings.Join(s.dataLines, "\n")}
			s.dataLines = nil
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			// comment line, ignored.
			if err != nil {
				return Event{}, err
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			s.eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			s.dataLines = append(s.dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// other fields (id:, retry:) are accepted but not surfaced.

		if err != nil {
			if len(s.dataLines) > 0 {
				ev := Event{Name: s.eventName, Data: strings.Join(s.dataLines, "\n")}
				s.dataLines = nil
				return ev, nil
			}
			return Event{}, err
		}
	}
}

// IsDone reports whether an event's data is the `[DONE]` sentinel.
func IsDone(ev Event) bool {
	return strings.TrimSpace(ev.Data) == Done
}

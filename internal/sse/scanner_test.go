package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *Scanner) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestScanner_BasicEvents(t *testing.T) {
	raw := "event: message_start\ndata: {\"a\":1}\n\nevent: content_block_delta\ndata: {\"b\":2}\n\n"
	s := NewScanner(strings.NewReader(raw))
	events := readAll(t, s)
	require.Len(t, events, 2)
	require.Equal(t, "message_start", events[0].Name)
	require.Equal(t, `{"a":1}`, events[0].Data)
	require.Equal(t, "content_block_delta", events[1].Name)
}

func TestScanner_EventNamePersistsAcrossBlankLines(t *testing.T) {
	raw := "event: delta\ndata: one\n\ndata: two\n\n"
	s := NewScanner(strings.NewReader(raw))
	events := readAll(t, s)
	require.Len(t, events, 2)
	require.Equal(t, "delta", events[0].Name)
	require.Equal(t, "delta", events[1].Name)
	require.Equal(t, "two", events[1].Data)
}

func TestScanner_MultilineData(t *testing.T) {
	raw := "data: line1\ndata: line2\n\n"
	s := NewScanner(strings.NewReader(raw))
	events := readAll(t, s)
	require.Len(t, events, 1)
	require.Equal(t, "line1\nline2", events[0].Data)
}

func TestScanner_CommentsIgnored(t *testing.T) {
	raw := ": heartbeat\ndata: ping\n\n"
	s := NewScanner(strings.NewReader(raw))
	events := readAll(t, s)
	require.Len(t, events, 1)
	require.Equal(t, "ping", events[0].Data)
}

func TestScanner_DoneSentinel(t *testing.T) {
	raw := "data: [DONE]\n\n"
	s := NewScanner(strings.NewReader(raw))
	events := readAll(t, s)
	require.Len(t, events, 1)
	require.True(t, IsDone(events[0]))
}

func TestScanner_FlushesTrailingEventWithoutBlankLine(t *testing.T) {
	raw := "data: partial"
	s := NewScanner(strings.NewReader(raw))
	ev, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "partial", ev.Data)
	_, err = s.Next()
	require.Equal(t, io.EOF, err)
}

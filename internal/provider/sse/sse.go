// Package sse parses the two Server-Sent-Events dialects cherry2k's
// providers speak: OpenAI's ("data: {...}" lines terminated by
// "data: [DONE]") and Anthropic's (typed "event: ..." / "data: ..."
// pairs). Grounded on the teacher's internal/ai streaming.go
// parseSSEStream and on original_source's provider::sse module.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event is one parsed "data:" payload, still as raw JSON bytes — each
// codec decodes it into its own event shape.
type Event struct {
	Type string // only set for Anthropic's typed events; empty for OpenAI
	Data []byte
}

// Scan reads raw SSE lines from r, yielding one Event per "data:" line.
// Blank lines, comments (lines starting with ':'), and the OpenAI
// "[DONE]" sentinel are consumed internally and never yielded; a
// "[DONE]" line ends the scan cleanly (no error). "event:" lines set the
// Type carried on the next Event.
func Scan(r io.Reader, yield func(Event) error) error {
	scanner := bufio.NewScanner(r)
	// Provider responses can include long tool-call JSON blobs on a
	// single line; grow the buffer past bufio's 64KB default.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var pendingType string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			pendingType = strings.TrimSpace(rest)
			continue
		}

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)

		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		if err := yield(Event{Type: pendingType, Data: []byte(data)}); err != nil {
			return err
		}
		pendingType = ""
	}

	return scanner.Err()
}

// DecodeJSON unmarshals an Event's data into v, wrapping any error with
// the raw payload for diagnosability.
func DecodeJSON(ev Event, v interface{}) error {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("sse: failed to decode event %q: %w (data: %s)", ev.Type, err, string(ev.Data))
	}
	return nil
}

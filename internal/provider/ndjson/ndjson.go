// Package ndjson parses Ollama's newline-delimited JSON streaming
// format: the response body is read in byte chunks, buffered, and split
// on '\n' as chunks arrive, since a single read may end mid-line.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Scan reads newline-delimited JSON objects from r, yielding the raw
// bytes of each complete line. A trailing line with no final newline
// (possible right at EOF) is still yielded once the reader is drained.
func Scan(r io.Reader, yield func([]byte) error) error {
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) > 0 {
				if yieldErr := yield(trimmed); yieldErr != nil {
					return yieldErr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func trimNewline(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}

// DecodeJSON unmarshals a single yielded line into v.
func DecodeJSON(line []byte, v interface{}) error {
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("ndjson: failed to decode line: %w (data: %s)", err, string(line))
	}
	return nil
}

package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadFile parses a JSONL trace file.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses JSONL trace events from r. Blank lines are skipped.
func Read(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	return events, nil
}

// Filter returns the events of the given type.
func Filter(events []Event, eventType EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

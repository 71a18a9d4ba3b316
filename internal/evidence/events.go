// Package evidence writes the human-auditable parts of a run's evidence bundle: the tool call event
// log, plan.md, summary.md and the staff copy of the secure link.
package evidence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of a tool call event.
type EventType string

const (
	EventStepStart EventType = "STEP_START"
	EventStepEnd   EventType = "STEP_END"
)

// Event is one line of tool_calls.jsonl. Data holds scalars only: counts, hashes, status.
type Event struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
}

// NewEvent builds an event with a fresh id and scalar-only data.
func NewEvent(eventType EventType, runID, message string, data map[string]any, now time.Time) Event {
	return Event{
		EventID:   uuid.NewString(),
		Timestamp: now.UTC(),
		EventType: eventType,
		RunID:     runID,
		Message:   message,
		Data:      Scalars(data),
	}
}

// Scalars returns the entries of data whose values are strings, numbers, booleans or nil.
// Named scalar types are flattened to their underlying kind. Slices, maps and structs are dropped so
// row-level data never reaches the log.
func Scalars(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == nil {
			out[k] = nil
			continue
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			out[k] = rv.String()
		case reflect.Bool:
			out[k] = rv.Bool()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[k] = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out[k] = rv.Uint()
		case reflect.Float32, reflect.Float64:
			out[k] = rv.Float()
		}
	}
	return out
}

// AppendEvent appends one event to a JSONL file, creating it if needed.
func AppendEvent(path string, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return &WriteError{Path: path, Cause: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	return nil
}

// ReadEvents reads every event in a JSONL file. A missing file yields no events.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return events, nil
}

package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKindName is the canonical lowercase name of an EventKind variant, used
// both as the event log's "kind" column and as the CLI's --kind filter.
type EventKindName string

const (
	EventKindSessionStart EventKindName = "session_start"
	EventKindSessionEnd   EventKindName = "session_end"
	EventKindMessage      EventKindName = "message"
	EventKindToolCall     EventKindName = "tool_call"
	EventKindToolResult   EventKindName = "tool_result"
)

// EventKind is the tagged payload carried by an Event. Exactly the fields
// relevant to Name are populated; the event log stores structural message
// text (role + content), not raw Parts — Parts drive the in-memory loop,
// Events are the audit trail.
type EventKind struct {
	Name EventKindName

	// Message fields.
	Role    Role
	Content string

	// ToolCall / ToolResult fields.
	ToolName string
	Input    json.RawMessage // ToolCall
	Output   json.RawMessage // ToolResult
}

// NewSessionStartKind builds a SessionStart EventKind.
func NewSessionStartKind() EventKind { return EventKind{Name: EventKindSessionStart} }

// NewSessionEndKind builds a SessionEnd EventKind.
func NewSessionEndKind() EventKind { return EventKind{Name: EventKindSessionEnd} }

// NewMessageKind builds a Message EventKind.
func NewMessageKind(role Role, content string) EventKind {
	return EventKind{Name: EventKindMessage, Role: role, Content: content}
}

// NewToolCallKind builds a ToolCall EventKind.
func NewToolCallKind(name string, input json.RawMessage) EventKind {
	return EventKind{Name: EventKindToolCall, ToolName: name, Input: input}
}

// NewToolResultKind builds a ToolResult EventKind.
func NewToolResultKind(name string, output json.RawMessage) EventKind {
	return EventKind{Name: EventKindToolResult, ToolName: name, Output: output}
}

// eventKindJSON is the on-disk wire shape: a flat tagged object so that
// round-tripping through JSON preserves equality for every variant.
type eventKindJSON struct {
	Kind    EventKindName   `json:"kind"`
	Role    Role            `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventKindJSON{
		Kind:    k.Name,
		Role:    k.Role,
		Content: k.Content,
		Name:    k.ToolName,
		Input:   k.Input,
		Output:  k.Output,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var wire eventKindJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	k.Name = wire.Kind
	k.Role = wire.Role
	k.Content = wire.Content
	k.ToolName = wire.Name
	k.Input = wire.Input
	k.Output = wire.Output
	return nil
}

// Event is a single immutable, totally-ordered (by timestamp, then id) entry
// in a session's append-only log.
type Event struct {
	ID        uuid.UUID
	SessionID SessionId
	Timestamp time.Time
	Kind      EventKind
}

// NewEvent mints a fresh Event with the current UTC time.
func NewEvent(sessionID SessionId, kind EventKind) Event {
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
	}
}

// SessionSummary is the aggregated view of one session for listing.
type SessionSummary struct {
	ID           SessionId
	StartedAt    time.Time
	EndedAt      *time.Time
	MessageCount int
}

// CorruptedError reports a row in the event log that failed to parse: an
// unparseable UUID, timestamp, or JSON payload. Corrupted rows are reported,
// never silently dropped.
type CorruptedError struct {
	Table  string
	ID     string
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted row in %s (id=%s): %s", e.Table, e.ID, e.Reason)
}

package runtime

import (
	"encoding/json"
	"fmt"
)

// ToolErrorKind tags the ToolError variant.
type ToolErrorKind string

const (
	ToolErrorNotFound         ToolErrorKind = "not_found"
	ToolErrorInvalidInput     ToolErrorKind = "invalid_input"
	ToolErrorCapabilityDenied ToolErrorKind = "capability_denied"
	ToolErrorTimeout          ToolErrorKind = "timeout"
	ToolErrorExecution        ToolErrorKind = "execution"
)

// ToolError is the closed sum of reasons a tool call can fail, delivered back
// to the model as a ToolResult failure rather than raised as a Go error to
// the caller of chat/chat_with_tools.
type ToolError struct {
	Kind ToolErrorKind
	// Message is the diagnostic string for NotFound, InvalidInput,
	// CapabilityDenied, and Execution.
	Message string
	// TimeoutMS is set only when Kind == ToolErrorTimeout.
	TimeoutMS int64
}

func (e ToolError) Error() string {
	switch e.Kind {
	case ToolErrorNotFound:
		return fmt.Sprintf("tool not found: %s", e.Message)
	case ToolErrorInvalidInput:
		return fmt.Sprintf("invalid input: %s", e.Message)
	case ToolErrorCapabilityDenied:
		return fmt.Sprintf("capability denied: %s", e.Message)
	case ToolErrorTimeout:
		return fmt.Sprintf("timeout after %dms", e.TimeoutMS)
	case ToolErrorExecution:
		return fmt.Sprintf("execution failed: %s", e.Message)
	default:
		return fmt.Sprintf("tool error: %s", e.Message)
	}
}

func NewNotFoundError(name string) ToolError {
	return ToolError{Kind: ToolErrorNotFound, Message: name}
}

func NewInvalidInputError(reason string) ToolError {
	return ToolError{Kind: ToolErrorInvalidInput, Message: reason}
}

func NewCapabilityDeniedError(reason string) ToolError {
	return ToolError{Kind: ToolErrorCapabilityDenied, Message: reason}
}

func NewTimeoutError(ms int64) ToolError {
	return ToolError{Kind: ToolErrorTimeout, TimeoutMS: ms}
}

func NewExecutionError(reason string) ToolError {
	return ToolError{Kind: ToolErrorExecution, Message: reason}
}

// toolErrorJSON is the tagged-object wire shape for ToolError, matching the
// event log's requirement that ToolError survive round-trip through JSON.
type toolErrorJSON struct {
	Kind      ToolErrorKind `json:"kind"`
	Message   string        `json:"message,omitempty"`
	TimeoutMS int64         `json:"timeout_ms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e ToolError) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolErrorJSON{Kind: e.Kind, Message: e.Message, TimeoutMS: e.TimeoutMS})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ToolError) UnmarshalJSON(data []byte) error {
	var wire toolErrorJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Kind = wire.Kind
	e.Message = wire.Message
	e.TimeoutMS = wire.TimeoutMS
	return nil
}

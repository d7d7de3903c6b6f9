package runtime

import (
	"encoding/json"
	"testing"
)

func TestToolError_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  ToolError
	}{
		{"not_found", NewNotFoundError("search")},
		{"invalid_input", NewInvalidInputError("missing field \"query\"")},
		{"capability_denied", NewCapabilityDeniedError("exec not allowed")},
		{"timeout", NewTimeoutError(15000)},
		{"execution", NewExecutionError("exit status 1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.err)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got ToolError
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got != tt.err {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.err)
			}
		})
	}
}

func TestToolError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  ToolError
		want string
	}{
		{"timeout message", NewTimeoutError(500), "timeout after 500ms"},
		{"not found message", NewNotFoundError("foo"), "tool not found: foo"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

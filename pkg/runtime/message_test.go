package runtime

import "testing"

func TestMessage_TextExtraction(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			NewTextPart("Hello "),
			NewToolCallPart(ToolCall{ID: "1", Name: "search"}),
			NewTextPart("world"),
		},
	}
	if got := msg.Text(); got != "Hello world" {
		t.Errorf("Text() = %q, want %q", got, "Hello world")
	}
}

func TestMessage_ToolCallsExtraction(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			NewTextPart("let me help"),
			NewToolCallPart(ToolCall{ID: "1", Name: "search"}),
			NewToolCallPart(ToolCall{ID: "2", Name: "read"}),
		},
	}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("len(ToolCalls()) = %d, want 2", len(calls))
	}
	if calls[0].Name != "search" || calls[1].Name != "read" {
		t.Errorf("unexpected tool call order: %+v", calls)
	}
}

func TestMessage_ToolResultOnlyMessage(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Parts: []Part{
			NewToolResultPart(NewToolSuccess("1", []byte(`3`))),
		},
	}
	if len(msg.ToolCalls()) != 0 {
		t.Errorf("expected no tool calls in a tool-result-only message")
	}
	if len(msg.ToolResults()) != 1 {
		t.Errorf("expected exactly one tool result")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"User", RoleUser, false},
		{"USER", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"system", RoleSystem, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if RoleUser.String() != "user" {
		t.Errorf("Role.String() = %q, want lowercase canonical name", RoleUser.String())
	}
}

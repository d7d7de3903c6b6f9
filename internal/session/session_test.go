package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/conduitrun/conduit/internal/policy"
	"github.com/conduitrun/conduit/internal/toolhost"
	"github.com/conduitrun/conduit/pkg/runtime"
)

// memoryEvents is an in-memory EventAppender fake for tests.
type memoryEvents struct {
	events []runtime.Event
}

func (m *memoryEvents) Append(_ context.Context, event runtime.Event) error {
	m.events = append(m.events, event)
	return nil
}

// stubBackend returns a scripted sequence of replies, one per call to Send.
type stubBackend struct {
	replies []stubReply
	calls   int
}

type stubReply struct {
	message runtime.Message
	usage   runtime.Usage
	err     error
}

func (s *stubBackend) Send(_ context.Context, _ []runtime.Message, _ []runtime.ToolSpec) (runtime.Message, runtime.Usage, error) {
	if s.calls >= len(s.replies) {
		return runtime.Message{}, runtime.Usage{}, context.DeadlineExceeded
	}
	r := s.replies[s.calls]
	s.calls++
	return r.message, r.usage, r.err
}

// stubHost always succeeds, echoing back the call's input as output.
type stubHost struct{}

func (stubHost) Specs() []runtime.ToolSpec { return nil }

func (stubHost) Execute(_ context.Context, call runtime.ToolCall) runtime.ToolResult {
	return runtime.NewToolSuccess(call.ID, call.Input)
}

func permissivePolicy() policy.Policy {
	return policy.Policy{Allow: policy.AllowRules{Exec: []string{"*"}}}
}

func textReply(text string, in, out int) stubReply {
	return stubReply{
		message: runtime.NewTextMessage(runtime.RoleAssistant, text),
		usage:   runtime.Usage{InputTokens: in, OutputTokens: out},
	}
}

func toolCallReply(id, name string, in, out int) stubReply {
	msg := runtime.Message{Parts: []runtime.Part{
		runtime.NewToolCallPart(runtime.ToolCall{ID: id, Name: name, Input: json.RawMessage(`{}`)}),
	}, Role: runtime.RoleAssistant}
	return stubReply{message: msg, usage: runtime.Usage{InputTokens: in, OutputTokens: out}}
}

func TestChat_TextOnlyTurn(t *testing.T) {
	events := &memoryEvents{}
	backend := &stubBackend{replies: []stubReply{textReply("hello", 10, 2)}}
	s, err := New(context.Background(), Config{
		Events:  events,
		Backend: backend,
		Policy:  permissivePolicy(),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	text, usage, err := s.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if text != "hello" {
		t.Errorf("got text %q, want %q", text, "hello")
	}
	if usage.InputTokens != 10 || usage.OutputTokens != 2 {
		t.Errorf("got usage %+v, want {10 2}", usage)
	}
	if len(s.Messages()) != 2 {
		t.Fatalf("got %d messages, want 2", len(s.Messages()))
	}
	if s.Usage() != usage {
		t.Errorf("session usage %+v does not match turn usage %+v", s.Usage(), usage)
	}

	// session_start, Message(user), Message(assistant)
	if len(events.events) != 3 {
		t.Fatalf("got %d events, want 3", len(events.events))
	}
	if events.events[0].Kind.Name != runtime.EventKindSessionStart {
		t.Errorf("first event kind = %v, want session_start", events.events[0].Kind.Name)
	}
	if events.events[1].Kind.Name != runtime.EventKindMessage || events.events[1].Kind.Role != runtime.RoleUser {
		t.Errorf("second event = %+v, want user message", events.events[1].Kind)
	}
	if events.events[2].Kind.Name != runtime.EventKindMessage || events.events[2].Kind.Role != runtime.RoleAssistant {
		t.Errorf("third event = %+v, want assistant message", events.events[2].Kind)
	}
}

func TestChat_ToolCallThenFinalAnswer(t *testing.T) {
	events := &memoryEvents{}
	backend := &stubBackend{replies: []stubReply{
		toolCallReply("call-1", "search", 5, 1),
		textReply("done", 6, 1),
	}}
	s, err := New(context.Background(), Config{
		Events:  events,
		Backend: backend,
		Policy:  permissivePolicy(),
		Host:    stubHost{},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	text, usage, err := s.Chat(context.Background(), "find it")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if text != "done" {
		t.Errorf("got text %q, want %q", text, "done")
	}
	if usage.InputTokens != 11 || usage.OutputTokens != 2 {
		t.Errorf("got usage %+v, want {11 2}", usage)
	}

	var sawToolCall, sawToolResult bool
	for _, e := range events.events {
		switch e.Kind.Name {
		case runtime.EventKindToolCall:
			sawToolCall = true
			if e.Kind.ToolName != "search" {
				t.Errorf("tool call event name = %q, want search", e.Kind.ToolName)
			}
		case runtime.EventKindToolResult:
			sawToolResult = true
		}
	}
	if !sawToolCall || !sawToolResult {
		t.Fatal("expected both tool_call and tool_result events to be appended")
	}
}

func TestChat_CapabilityDeniedIsRecoverableNotFatal(t *testing.T) {
	events := &memoryEvents{}
	backend := &stubBackend{replies: []stubReply{
		toolCallReply("call-1", "search", 5, 1),
		textReply("recovered", 6, 1),
	}}
	restrictive := policy.Restrictive() // denies exec outright
	s, err := New(context.Background(), Config{
		Events:  events,
		Backend: backend,
		Policy:  restrictive,
		Host:    stubHost{},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	text, _, err := s.Chat(context.Background(), "find it")
	if err != nil {
		t.Fatalf("chat: %v, want the turn to recover from a denied tool call", err)
	}
	if text != "recovered" {
		t.Errorf("got text %q, want %q", text, "recovered")
	}
}

func TestChat_LoopBoundRaisesInvalidState(t *testing.T) {
	replies := make([]stubReply, 0, MaxToolSteps)
	for i := 0; i < MaxToolSteps; i++ {
		replies = append(replies, toolCallReply("call", "search", 1, 1))
	}
	events := &memoryEvents{}
	backend := &stubBackend{replies: replies}
	s, err := New(context.Background(), Config{
		Events:  events,
		Backend: backend,
		Policy:  permissivePolicy(),
		Host:    stubHost{},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	_, _, err = s.Chat(context.Background(), "loop forever")
	if err == nil {
		t.Fatal("expected InvalidStateError after exceeding MaxToolSteps")
	}
	var invalidState *InvalidStateError
	if !asInvalidState(err, &invalidState) {
		t.Fatalf("got %T, want *InvalidStateError", err)
	}

	toolCallEvents := 0
	for _, e := range events.events {
		if e.Kind.Name == runtime.EventKindToolCall {
			toolCallEvents++
		}
	}
	if toolCallEvents != MaxToolSteps {
		t.Errorf("got %d tool_call events, want %d", toolCallEvents, MaxToolSteps)
	}
}

func asInvalidState(err error, target **InvalidStateError) bool {
	ise, ok := err.(*InvalidStateError)
	if !ok {
		return false
	}
	*target = ise
	return true
}

// Package session implements the agentic loop: the state machine that
// drives alternating model calls and tool executions for one conversation
// until the model stops requesting tools or the step ceiling is hit.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/conduitrun/conduit/internal/audit"
	"github.com/conduitrun/conduit/internal/backend"
	"github.com/conduitrun/conduit/internal/observability"
	"github.com/conduitrun/conduit/internal/policy"
	"github.com/conduitrun/conduit/internal/toolhost"
	"github.com/conduitrun/conduit/pkg/runtime"
)

// MaxToolSteps is the hard safety ceiling on model-then-tools cycles within
// a single user turn. Hitting it is an error, not a success.
const MaxToolSteps = 8

// InvalidStateError reports the loop hitting a safety ceiling: it is always
// fatal to the turn, never recovered by feeding it back to the model.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

// Session owns one conversation's message history and cumulative usage. A
// Session is single-writer: exactly one caller drives Chat at a time.
type Session struct {
	id       runtime.SessionId
	system   string
	messages []runtime.Message
	usage    runtime.Usage

	events  EventAppender
	backend backend.Backend
	policy  policy.Checker
	host    toolhost.Host

	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
	audit   *audit.Logger
}

// EventAppender is the subset of eventlog.Store the session needs: append
// an event, nothing else. A narrow interface keeps the session testable
// with an in-memory fake.
type EventAppender interface {
	Append(ctx context.Context, event runtime.Event) error
}

// Config assembles a new Session. Host may be nil, in which case
// toolhost.EmptyHost is used and the model is never offered tools.
type Config struct {
	System  string
	Events  EventAppender
	Backend backend.Backend
	Policy  policy.Checker
	Host    toolhost.Host
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger

	// Audit records tool invocations, completions, and policy denials for
	// external review. Nil disables audit logging entirely.
	Audit *audit.Logger
}

// New starts a fresh session, appending its session_start event.
func New(ctx context.Context, config Config) (*Session, error) {
	if config.Host == nil {
		config.Host = toolhost.EmptyHost{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NewMetrics()
	}
	if config.Tracer == nil {
		config.Tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "conduit"})
	}

	id := runtime.NewSessionId()
	s := &Session{
		id:      id,
		system:  config.System,
		events:  config.Events,
		backend: config.Backend,
		policy:  config.Policy,
		host:    config.Host,
		metrics: config.Metrics,
		tracer:  config.Tracer,
		logger:  config.Logger.With("session_id", id.String()),
		audit:   config.Audit,
	}

	if err := s.appendEvent(ctx, runtime.NewSessionStartKind()); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session's immutable identifier.
func (s *Session) ID() runtime.SessionId { return s.id }

// Usage returns the cumulative token usage across every turn so far.
func (s *Session) Usage() runtime.Usage { return s.usage }

// Messages returns the full in-memory conversation history.
func (s *Session) Messages() []runtime.Message { return s.messages }

func (s *Session) appendEvent(ctx context.Context, kind runtime.EventKind) error {
	return s.events.Append(ctx, runtime.NewEvent(s.id, kind))
}

// Chat runs one user turn: the model is called, and its tool calls (if any)
// are executed in a loop bounded by MaxToolSteps, until it produces a final
// text answer. Only event-log or backend-transport failures abort the turn;
// individual tool failures are fed back to the model as failed ToolResults.
func (s *Session) Chat(ctx context.Context, userInput string) (string, runtime.Usage, error) {
	ctx, turnSpan := s.tracer.TraceTurn(ctx, s.id.String())
	defer turnSpan.End()
	turnStart := time.Now()
	s.metrics.TurnStarted()

	s.messages = append(s.messages, runtime.NewTextMessage(runtime.RoleUser, userInput))
	if err := s.appendEvent(ctx, runtime.NewMessageKind(runtime.RoleUser, userInput)); err != nil {
		return "", runtime.Usage{}, err
	}

	var turnUsage runtime.Usage
	for step := 1; step <= MaxToolSteps; step++ {
		stepCtx, stepSpan := s.tracer.Start(ctx, "session.step", observability.SpanOptions{
			Attributes: []attribute.KeyValue{
				attribute.String("session_id", s.id.String()),
				attribute.Int("step", step),
			},
		})

		text, calls, stepUsage, err := s.runStep(stepCtx)
		stepSpan.End()
		if err != nil {
			s.tracer.RecordError(turnSpan, err)
			return "", turnUsage, err
		}
		turnUsage = turnUsage.Add(stepUsage)

		if len(calls) == 0 {
			s.usage = s.usage.Add(turnUsage)
			s.metrics.TurnEnded(time.Since(turnStart).Seconds(), step)
			return text, turnUsage, nil
		}

		results, err := s.executeCalls(ctx, calls)
		if err != nil {
			s.tracer.RecordError(turnSpan, err)
			return "", turnUsage, err
		}

		parts := make([]runtime.Part, 0, len(results))
		for _, r := range results {
			parts = append(parts, runtime.NewToolResultPart(r))
		}
		s.messages = append(s.messages, runtime.Message{Role: runtime.RoleUser, Parts: parts})
	}

	err := &InvalidStateError{Reason: "max tool steps exceeded"}
	s.tracer.RecordError(turnSpan, err)
	s.metrics.RecordError("session", "max_tool_steps_exceeded")
	s.logger.Error("turn aborted", "reason", err.Reason, "max_tool_steps", MaxToolSteps)
	return "", turnUsage, err
}

// runStep issues one backend call, appends the assistant message and its
// event, and returns the assistant's text and any tool calls it requested.
func (s *Session) runStep(ctx context.Context) (string, []runtime.ToolCall, runtime.Usage, error) {
	request := s.buildRequest()
	tools := s.host.Specs()

	reply, usage, err := s.backend.Send(ctx, request, tools)
	if err != nil {
		return "", nil, runtime.Usage{}, fmt.Errorf("backend call: %w", err)
	}

	text := reply.Text()
	calls := reply.ToolCalls()
	s.messages = append(s.messages, reply)
	if text != "" {
		if err := s.appendEvent(ctx, runtime.NewMessageKind(runtime.RoleAssistant, text)); err != nil {
			return "", nil, runtime.Usage{}, err
		}
	}
	return text, calls, usage, nil
}

func (s *Session) buildRequest() []runtime.Message {
	if s.system == "" {
		return s.messages
	}
	request := make([]runtime.Message, 0, len(s.messages)+1)
	request = append(request, runtime.NewTextMessage(runtime.RoleSystem, s.system))
	request = append(request, s.messages...)
	return request
}

// executeCalls runs every call in order, consulting the capability policy
// before dispatching each one to the tool host. Tool failures become failed
// ToolResults, not turn-aborting errors.
func (s *Session) executeCalls(ctx context.Context, calls []runtime.ToolCall) ([]runtime.ToolResult, error) {
	results := make([]runtime.ToolResult, 0, len(calls))
	for _, call := range calls {
		if err := s.appendEvent(ctx, runtime.NewToolCallKind(call.Name, call.Input)); err != nil {
			return nil, err
		}

		result := s.executeWithPolicy(ctx, call)

		outputOrErr := result.Output
		if result.Status == runtime.ToolResultFailure {
			errJSON, marshalErr := json.Marshal(result.Err)
			if marshalErr != nil {
				return nil, marshalErr
			}
			outputOrErr = errJSON
		}
		if err := s.appendEvent(ctx, runtime.NewToolResultKind(call.Name, outputOrErr)); err != nil {
			return nil, err
		}

		results = append(results, result)
	}
	return results, nil
}

// executeWithPolicy synthesizes a CapabilityRequest from the call (every
// tool invocation maps to exec(name)), consults the policy, and only
// dispatches to the tool host when the policy allows it.
func (s *Session) executeWithPolicy(ctx context.Context, call runtime.ToolCall) runtime.ToolResult {
	sessionKey := s.id.String()
	request := runtime.NewExecRequest(call.Name)
	decision := s.policy.Check(request)
	if !decision.Allowed {
		s.metrics.RecordToolExecution(call.Name, "denied", 0)
		if s.audit != nil {
			s.audit.LogToolDenied(ctx, call.Name, call.ID, decision.Reason, call.Name, sessionKey)
		}
		return runtime.NewToolFailure(call.ID, runtime.NewCapabilityDeniedError(decision.Reason))
	}

	if s.audit != nil {
		s.audit.LogToolInvocation(ctx, call.Name, call.ID, call.Input, sessionKey)
	}
	start := time.Now()
	result := s.host.Execute(ctx, call)
	if s.audit != nil {
		s.audit.LogToolCompletion(ctx, call.Name, call.ID, result.Status == runtime.ToolResultSuccess, string(result.Output), time.Since(start), sessionKey)
	}
	return result
}

// End appends the session_end event. Callers should invoke it once when the
// session is done, typically via defer.
func (s *Session) End(ctx context.Context) error {
	return s.appendEvent(ctx, runtime.NewSessionEndKind())
}

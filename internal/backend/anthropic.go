package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/conduitrun/conduit/internal/observability"
	"github.com/conduitrun/conduit/internal/retry"
	"github.com/conduitrun/conduit/pkg/runtime"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096

	// oauthSystemPrefix is mandated by Anthropic for requests authenticated
	// with a Claude Code OAuth token: it must be the first system block,
	// verbatim, ahead of any caller-supplied system prompt.
	oauthSystemPrefix = "You are Claude Code, Anthropics official CLI for Claude."
	oauthBetaHeader   = "claude-code-20250219,oauth-2025-04-20,fine-grained-tool-streaming-2025-05-14,interleaved-thinking-2025-05-14"
	oauthTokenMarker  = "sk-ant-oat"
	claudeCodeVersion = "2.1.2"
)

// AnthropicConfig configures the Anthropic backend. Exactly one of APIKey
// or OAuthToken must be set.
type AnthropicConfig struct {
	APIKey     string
	OAuthToken string
	BaseURL    string
	Model      string
	MaxTokens  int

	// RequestsPerSecond and Burst configure the token-bucket limiter guarding
	// outbound requests. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Retry retry.Config
}

// AnthropicBackend sends conversations to the Anthropic Messages API via a
// single synchronous (non-streaming) call per turn.
type AnthropicBackend struct {
	client    anthropic.Client
	config    AnthropicConfig
	limiter   *rate.Limiter
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
	isOAuth   bool
}

// NewAnthropicBackend validates config and builds a ready-to-use backend.
func NewAnthropicBackend(config AnthropicConfig, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) (*AnthropicBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.APIKey != "" && config.OAuthToken != "" {
		return nil, &ConfigError{Reason: "api key and oauth token are mutually exclusive"}
	}
	if config.APIKey == "" && config.OAuthToken == "" {
		return nil, &ConfigError{Reason: "one of api key or oauth token is required"}
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Exponential(5, 500*time.Millisecond, 30*time.Second)
	}

	isOAuth := config.OAuthToken != "" || strings.Contains(config.APIKey, oauthTokenMarker)

	opts := []option.RequestOption{}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if isOAuth {
		token := config.OAuthToken
		if token == "" {
			token = config.APIKey
		}
		opts = append(opts,
			option.WithHeader("Authorization", "Bearer "+token),
			option.WithHeader("anthropic-beta", oauthBetaHeader),
			option.WithHeader("anthropic-dangerous-direct-browser-access", "true"),
			option.WithHeader("user-agent", fmt.Sprintf("claude-cli/%s (external, cli)", claudeCodeVersion)),
			option.WithHeader("x-app", "cli"),
		)
	} else {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &AnthropicBackend{
		client:  anthropic.NewClient(opts...),
		config:  config,
		limiter: limiter,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
		isOAuth: isOAuth,
	}, nil
}

// Send implements Backend. Non-Network failures (bad request, auth
// rejection, rate limit, server errors surfaced as ApiError) are not
// retried; only NetworkError is, via internal/retry.
func (b *AnthropicBackend) Send(ctx context.Context, messages []runtime.Message, tools []runtime.ToolSpec) (runtime.Message, runtime.Usage, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return runtime.Message{}, runtime.Usage{}, err
		}
	}

	ctx, span := b.tracer.TraceLLMRequest(ctx, "anthropic", b.config.Model)
	defer span.End()
	start := time.Now()

	params, err := b.buildParams(messages, tools)
	if err != nil {
		return runtime.Message{}, runtime.Usage{}, err
	}

	reply, result := retry.DoWithValue(ctx, b.config.Retry, func() (*anthropic.Message, error) {
		msg, err := b.client.Messages.New(ctx, params)
		if err != nil {
			return nil, b.classify(err)
		}
		return msg, nil
	})

	duration := time.Since(start).Seconds()
	if result.Err != nil {
		b.tracer.RecordError(span, result.Err)
		b.metrics.RecordLLMRequest("anthropic", b.config.Model, "error", duration, 0, 0)
		return runtime.Message{}, runtime.Usage{}, result.Err
	}

	out, usage := b.convertReply(reply)
	b.metrics.RecordLLMRequest("anthropic", b.config.Model, "success", duration, usage.InputTokens, usage.OutputTokens)
	return out, usage, nil
}

func (b *AnthropicBackend) buildParams(messages []runtime.Message, tools []runtime.ToolSpec) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.config.Model),
		MaxTokens: int64(b.config.MaxTokens),
	}

	var systemText string
	apiMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == runtime.RoleSystem {
			systemText = m.Text()
			continue
		}
		converted, err := b.convertMessage(m)
		if err != nil {
			return params, err
		}
		apiMessages = append(apiMessages, converted)
	}
	params.Messages = apiMessages
	params.System = b.buildSystemBlocks(systemText)

	if len(tools) > 0 {
		converted, err := b.convertTools(tools)
		if err != nil {
			return params, err
		}
		params.Tools = converted
	}

	return params, nil
}

// buildSystemBlocks prepends the OAuth identity prefix, byte-exact, ahead of
// any caller-supplied system prompt, when authenticated via OAuth token.
func (b *AnthropicBackend) buildSystemBlocks(systemText string) []anthropic.TextBlockParam {
	if !b.isOAuth {
		if systemText == "" {
			return nil
		}
		return []anthropic.TextBlockParam{{Type: "text", Text: systemText}}
	}

	ephemeral := anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
	blocks := []anthropic.TextBlockParam{{
		Type:         "text",
		Text:         oauthSystemPrefix,
		CacheControl: ephemeral,
	}}
	if systemText != "" {
		blocks = append(blocks, anthropic.TextBlockParam{
			Type:         "text",
			Text:         systemText,
			CacheControl: ephemeral,
		})
	}
	return blocks
}

func (b *AnthropicBackend) convertMessage(m runtime.Message) (anthropic.MessageParam, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range m.Parts {
		switch part.Kind {
		case runtime.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case runtime.PartToolCall:
			var input any
			if len(part.ToolCall.Input) > 0 {
				if err := json.Unmarshal(part.ToolCall.Input, &input); err != nil {
					return anthropic.MessageParam{}, fmt.Errorf("tool call %s: invalid input json: %w", part.ToolCall.ID, err)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Name))
		case runtime.PartToolResult:
			blocks = append(blocks, toolResultBlock(*part.ToolResult))
		}
	}

	if m.Role == runtime.RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...), nil
	}
	return anthropic.NewUserMessage(blocks...), nil
}

func toolResultBlock(result runtime.ToolResult) anthropic.ContentBlockParamUnion {
	if result.Status == runtime.ToolResultSuccess {
		return anthropic.NewToolResultBlock(result.ToolCallID, string(result.Output), false)
	}
	return anthropic.NewToolResultBlock(result.ToolCallID, result.Err.Error(), true)
}

func (b *AnthropicBackend) convertTools(tools []runtime.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (b *AnthropicBackend) convertReply(msg *anthropic.Message) (runtime.Message, runtime.Usage) {
	var parts []runtime.Part
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, runtime.NewTextPart(variant.Text))
		case anthropic.ToolUseBlock:
			parts = append(parts, runtime.NewToolCallPart(runtime.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.Input),
			}))
		}
	}

	usage := runtime.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return runtime.Message{Role: runtime.RoleAssistant, Parts: parts}, usage
}

// classify turns an SDK error into NetworkError (retryable) or ApiError
// (not retryable): a response the provider actually sent back — even a 5xx
// or 429 — is an ApiError; only a failure to reach the provider at all is a
// NetworkError. Rate limits and server errors ride through one retry loop
// layer up at the session/tool-step boundary, not here.
func (b *AnthropicBackend) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.StatusCode) {
			return &NetworkError{Provider: "anthropic", Err: apiErr}
		}
		return &ApiError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return &NetworkError{Provider: "anthropic", Err: err}
}

func isTransientStatus(code int) bool {
	return code == 429 || code >= 500
}

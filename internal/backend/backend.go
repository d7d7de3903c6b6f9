// Package backend adapts third-party model providers to a single
// synchronous interface: one turn in, one assistant Message out. Non-goal:
// streaming tokens to the caller — every call blocks until the provider's
// full response is available.
package backend

import (
	"context"

	"github.com/conduitrun/conduit/pkg/runtime"
)

// Backend sends a conversation to a model provider and returns the
// assistant's reply in full.
type Backend interface {
	// Send submits the conversation so far, plus the tools available to the
	// model, and blocks until the provider returns a complete reply.
	Send(ctx context.Context, messages []runtime.Message, tools []runtime.ToolSpec) (runtime.Message, runtime.Usage, error)
}

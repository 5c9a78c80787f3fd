// Package gateway implements the LLM Gateway (C3): a bounded-concurrency,
// rate-limited, retrying request queue in front of the model endpoint,
// with usage accounting and model-quirk handling (§4.3).
package gateway

import (
	"context"

	"github.com/zBiTz/strix/pkg/models"
)

// Request is one call to the model: the compressed message history and
// the tool specifications available this turn.
type Request struct {
	Model    string
	Messages []models.Message
	Tools    []models.ToolDescriptor
	// CacheBreakpoints marks message indices where a prompt-caching
	// provider should insert a cache boundary (§4.3: every 10 messages).
	CacheBreakpoints []int
}

// Response is the model's reply plus the usage delta for this call.
type Response struct {
	Message models.Message
	Usage   models.Usage
}

// LLMClient is the concrete transport to a model endpoint. The Gateway
// wraps it with concurrency control, retries, and accounting; model
// quirks (reasoning budgets, vision payload shaping) are resolved by the
// concrete client, not the engine, per §4.3.
type LLMClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

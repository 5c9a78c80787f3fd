package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// cacheBreakpointStride marks a cache boundary every N messages for
// providers that support prompt caching (§4.3).
const cacheBreakpointStride = 10

// Config configures the Gateway's admission, rate limiting, and retry
// policy, sourced from the environment per §6.
type Config struct {
	Concurrent int           // LLM_RATE_LIMIT_CONCURRENT
	Delay      time.Duration // LLM_RATE_LIMIT_DELAY, spaced between submissions
	Timeout    time.Duration // LLM_TIMEOUT, per-request
	MaxRetries int
}

// Gateway fronts an LLMClient with bounded concurrency, rate limiting,
// retries, cancellation propagation, and usage accounting. One Gateway is
// shared process-wide; its semaphore and limiter are the designated
// shared-mutable-state stores for this concern (§5).
type Gateway struct {
	client  LLMClient
	cfg     Config
	log     *slog.Logger
	sem     *fifoSemaphore
	limiter *rate.Limiter

	mu    sync.Mutex
	total models.Usage
}

// New constructs a Gateway in front of client.
func New(client LLMClient, cfg Config, log *slog.Logger) *Gateway {
	if cfg.Concurrent <= 0 {
		cfg.Concurrent = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	var limiter *rate.Limiter
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Gateway{
		client:  client,
		cfg:     cfg,
		log:     log,
		sem:     newFIFOSemaphore(cfg.Concurrent),
		limiter: limiter,
	}
}

// Complete submits req, enforcing bounded FIFO-fair concurrency, the
// configured inter-submission delay, a per-request timeout, and retry
// with exponential backoff on transient failures (5xx, timeouts,
// rate-limit responses). Cancellation of ctx propagates to the
// in-flight request (§4.3, §5).
func (g *Gateway) Complete(ctx context.Context, req Request) (Response, error) {
	req.CacheBreakpoints = breakpoints(len(req.Messages))

	if err := g.sem.acquire(ctx); err != nil {
		return Response{}, strixerr.Wrap(strixerr.KindCancelled, err, "llm gateway: cancelled waiting for a slot")
	}
	defer g.sem.release()

	if err := g.limiter.Wait(ctx); err != nil {
		return Response{}, strixerr.Wrap(strixerr.KindCancelled, err, "llm gateway: cancelled waiting on rate limiter")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.cfg.MaxRetries))

	var resp Response
	err := backoff.Retry(func() error {
		r, err := g.client.Complete(callCtx, req)
		if err != nil {
			if !isRetryableLLMError(err) || callCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			g.log.Warn("llm request failed, retrying", "error", err)
			return err
		}
		resp = r
		return nil
	}, backoff.WithContext(b, callCtx))

	if err != nil {
		g.recordFailure()
		if callCtx.Err() != nil {
			return Response{}, strixerr.Wrap(strixerr.KindLLMFatal, err, "llm gateway: request timed out")
		}
		return Response{}, strixerr.Wrap(strixerr.KindLLMFatal, err, "llm gateway: retries exhausted")
	}

	usd, known := costUSD(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CachedTokens)
	if !known {
		g.log.Warn("no price table entry for model, recording zero cost", "model", req.Model)
	}
	resp.Usage.CostUSD = usd
	g.recordSuccess(resp.Usage)
	return resp, nil
}

// Totals returns a snapshot of accumulated usage across every Complete
// call this Gateway has served.
func (g *Gateway) Totals() models.Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

func (g *Gateway) recordSuccess(u models.Usage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u.Requests = 1
	g.total.Add(u)
}

func (g *Gateway) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.total.Add(models.Usage{Requests: 1, FailedRequests: 1})
}

// breakpoints returns the message indices at which a cache boundary
// should be inserted: every cacheBreakpointStride messages (§4.3).
func breakpoints(messageCount int) []int {
	if messageCount == 0 {
		return nil
	}
	var out []int
	for i := cacheBreakpointStride; i <= messageCount; i += cacheBreakpointStride {
		out = append(out, i-1)
	}
	return out
}

// isRetryableLLMError reports whether err is a transient failure (5xx,
// timeout, rate-limit) worth retrying, as opposed to a fatal one (§4.3,
// §7: llm_rate_limited retried inside the gateway, llm_fatal escalates).
func isRetryableLLMError(err error) bool {
	if kind, ok := strixerr.KindOf(err); ok {
		return kind == strixerr.KindLLMRateLimited || kind == strixerr.KindSandboxTimeout
	}
	// Errors the concrete LLMClient didn't classify are assumed transient
	// (network blips, 5xx) rather than fatal, matching the teacher's
	// BaseProvider.Retry default of retrying anything not explicitly
	// excluded by isRetryable.
	return true
}

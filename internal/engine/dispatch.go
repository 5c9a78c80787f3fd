package engine

import (
	"context"
	"sync"
	"time"

	"github.com/zBiTz/strix/pkg/models"
)

// dispatchCalls runs calls either as one parallel batch (when every tool
// is parallelizable) or as a serial run in the model's order. A batch
// that mixes parallelizable and non-parallelizable tools degrades to
// fully serial order as written (§4.5).
//
// Tool-result messages are always returned in request order c1..cn
// regardless of completion order (§5, §8).
func (e *Engine) dispatchCalls(ctx context.Context, calls []models.ToolCall) []models.Message {
	parallel, serialStart := e.splitBatch(calls)

	results := make([]models.ToolCall, len(calls))

	if len(parallel) > 0 {
		e.runParallel(ctx, calls, parallel, results)
	}
	for i := serialStart; i < len(calls); i++ {
		call, action := e.runOne(ctx, calls[i])
		results[i] = call
		e.agent.State.Actions = append(e.agent.State.Actions, action)
	}

	out := make([]models.Message, 0, len(calls))
	for _, tc := range results {
		e.emit(models.EventToolResult, map[string]any{"tool": tc.Name, "call_id": tc.ID, "ok": tc.Error == nil})
		out = append(out, models.Message{
			Role:      models.RoleToolResult,
			ToolCalls: []models.ToolCall{tc},
			CreatedAt: time.Now(),
		})
	}
	return out
}

// splitBatch identifies the indices of a leading run of parallelizable
// tools. If any call is non-parallelizable, every call from that point
// (and every parallelizable call that precedes it) runs serially instead
// — a mixed batch degrades to fully serial order (§4.5).
func (e *Engine) splitBatch(calls []models.ToolCall) (parallelIdx []int, serialStart int) {
	for i, c := range calls {
		desc, ok := e.registry.Lookup(c.Name)
		if !ok || !desc.Parallelizable {
			return nil, 0
		}
		parallelIdx = append(parallelIdx, i)
	}
	return parallelIdx, len(calls)
}

// runParallel executes the given indices of calls concurrently, bounded
// by MaxParallelFanout, and writes each outcome into results at its
// original index so order is preserved regardless of completion order.
// Actions are appended to AgentState by the caller's goroutine only,
// after Wait, so the only mutation of shared state here happens back on
// the owning engine's single writer (§5).
func (e *Engine) runParallel(ctx context.Context, calls []models.ToolCall, indices []int, results []models.ToolCall) {
	sem := make(chan struct{}, e.cfg.MaxParallelFanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var actions []models.Action

	for _, idx := range indices {
		idx := idx
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			call, action := e.runOne(ctx, calls[idx])
			results[idx] = call
			mu.Lock()
			actions = append(actions, action)
			mu.Unlock()
		}()
	}
	wg.Wait()
	e.agent.State.Actions = append(e.agent.State.Actions, actions...)
}

// runOne dispatches a single tool call and folds the outcome back into
// the ToolCall record. Tool errors are surfaced as an error field on the
// result rather than terminating the loop (§4.5, §7). The caller is
// responsible for appending the returned Action to AgentState, keeping
// that mutation on the owning engine's single writer.
func (e *Engine) runOne(ctx context.Context, call models.ToolCall) (models.ToolCall, models.Action) {
	started := time.Now()
	call.StartedAt = &started

	result, err := e.dispatch.Dispatch(ctx, e.agent.ID, call.Name, call.Args)

	ended := time.Now()
	call.EndedAt = &ended

	if err != nil {
		call.Error = &models.ToolError{Kind: "tool_error", Message: err.Error()}
	} else {
		call.Result = result
	}

	action := models.Action{
		ToolName:   call.Name,
		Succeeded:  err == nil,
		DurationMS: ended.Sub(started).Milliseconds(),
	}
	return call, action
}

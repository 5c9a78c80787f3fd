// Package engine implements the Agent Engine (C5): the per-agent
// think-act loop that serialises model outputs into tool calls, merges
// results back into state, enforces the iteration budget, and drives the
// agent's state-machine transitions (§4.5).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zBiTz/strix/internal/gateway"
	"github.com/zBiTz/strix/internal/memory"
	"github.com/zBiTz/strix/internal/registry"
	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// finishToolName is the well-known tool name an agent calls to signal it
// has nothing further to do (§4.5).
const finishToolName = "finish"

// sendMessageToolName is the well-known tool an agent calls to message
// another agent in the graph; expect_reply=true drives the
// running->waiting transition (§4.5).
const sendMessageToolName = "send_message"

// Inbox drains unread inbound messages for an agent, letting the engine
// turn them into a system message before its next iteration (§4.6).
type Inbox interface {
	Receive(agentID string) ([]models.AgentMessage, error)
}

// Dispatcher routes one tool call to either the sandbox runtime or a
// host-local handler, hiding that routing decision from the engine
// itself; the engine only needs to know whether the call may run
// concurrently with its siblings.
type Dispatcher interface {
	// Dispatch runs name with args on behalf of agentID and returns its
	// textual result or an error. Errors are fed back to the model as
	// tool-result messages rather than terminating the loop (§4.5, §7).
	Dispatch(ctx context.Context, agentID, name string, args json.RawMessage) (string, error)
}

// TraceSink receives lifecycle events as the engine progresses, for the
// Run Store & Tracer (C8) to persist.
type TraceSink interface {
	OnEvent(event models.Event)
}

// Config bounds one Engine instance's behavior.
type Config struct {
	MaxParallelFanout int // bounded concurrency for the parallel batch
}

func defaultConfig() Config {
	return Config{MaxParallelFanout: 8}
}

// Engine drives one Agent's think-act loop. Only this instance mutates
// its Agent's AgentState (§5: single-writer rule).
type Engine struct {
	agent      *models.Agent
	registry   *registry.Registry
	llm        *gateway.Gateway
	compressor *memory.Compressor
	dispatch   Dispatcher
	trace      TraceSink
	inbox      Inbox
	log        *slog.Logger
	cfg        Config
	model      string

	onWait   func(ctx context.Context) (resumed, timedOut bool, err error)
	onFinish func() error
}

// New constructs an Engine for agent. onWait/onFinish are the Agent
// Graph's Wait/Finish operations, and inbox is its Receive operation,
// injected so that engine does not import agentgraph directly and their
// concurrency model stays owned by the graph (§4.6).
func New(
	agent *models.Agent,
	reg *registry.Registry,
	llm *gateway.Gateway,
	compressor *memory.Compressor,
	dispatch Dispatcher,
	trace TraceSink,
	inbox Inbox,
	log *slog.Logger,
	model string,
	onWait func(ctx context.Context) (resumed, timedOut bool, err error),
	onFinish func() error,
	opts ...func(*Config),
) *Engine {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine{
		agent:      agent,
		registry:   reg,
		llm:        llm,
		compressor: compressor,
		dispatch:   dispatch,
		trace:      trace,
		inbox:      inbox,
		log:        log,
		cfg:        cfg,
		model:      model,
		onWait:     onWait,
		onFinish:   onFinish,
	}
}

// Run executes the think-act loop until the agent reaches a terminal
// status (finished, failed, or the stuck/exhausted variants of failed),
// or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	consecutiveNoToolCalls := 0

	for {
		if ctx.Err() != nil {
			e.fail("cancelled")
			return strixerr.New(strixerr.KindCancelled, "scan cancelled")
		}

		if e.agent.Iteration >= e.agent.IterationLimit {
			e.fail("exhausted")
			return strixerr.New(strixerr.KindAgentExhausted, "agent exhausted its iteration budget")
		}

		compressed := e.compressor.Compress(ctx, e.agent.State)

		reply, err := e.llm.Complete(ctx, gateway.Request{
			Model:    e.model,
			Messages: compressed,
			Tools:    e.registry.Schemas(),
		})
		if err != nil {
			if ctx.Err() != nil {
				e.fail("cancelled")
				return strixerr.New(strixerr.KindCancelled, "scan cancelled")
			}
			e.fail("failed")
			return err
		}

		e.agent.State.Messages = append(e.agent.State.Messages, reply.Message)
		e.agent.State.Usage.Add(reply.Usage)
		e.agent.Iteration++

		calls := reply.Message.ToolCalls
		if len(calls) == 0 {
			consecutiveNoToolCalls++
			if consecutiveNoToolCalls >= 2 {
				e.fail("stuck")
				return strixerr.New(strixerr.KindAgentStuck, "two consecutive iterations produced no tool calls")
			}
			continue
		}
		consecutiveNoToolCalls = 0

		results := e.dispatchCalls(ctx, calls)
		e.agent.State.Messages = append(e.agent.State.Messages, results...)

		// finish is honored after the rest of the batch has been dispatched
		// (§4.5 step (i)), so a batch like [tool_x, finish] still runs
		// tool_x instead of silently dropping it.
		if e.containsFinish(calls) {
			if err := e.onFinish(); err != nil {
				// Unread messages remain; the engine must drain them and
				// continue rather than terminate (§4.6).
				e.drainInboxAsMessage()
				continue
			}
			e.agent.Status = models.AgentStatusFinished
			return nil
		}

		if e.expectsReply(calls) && e.onWait != nil {
			if err := e.awaitReply(ctx); err != nil {
				e.fail("cancelled")
				return strixerr.New(strixerr.KindCancelled, "scan cancelled while waiting for reply")
			}
		}
	}
}

func (e *Engine) containsFinish(calls []models.ToolCall) bool {
	for _, c := range calls {
		if c.Name == finishToolName {
			return true
		}
	}
	return false
}

// expectsReply reports whether the just-dispatched batch included a
// send_message call with expect_reply=true, which drives the
// running->waiting transition (§4.5).
func (e *Engine) expectsReply(calls []models.ToolCall) bool {
	for _, c := range calls {
		if c.Name != sendMessageToolName {
			continue
		}
		var args struct {
			ExpectReply bool `json:"expect_reply"`
		}
		if err := json.Unmarshal(c.Args, &args); err == nil && args.ExpectReply {
			return true
		}
	}
	return false
}

// awaitReply transitions running->waiting and blocks on onWait until a
// reply arrives or the 600s auto-resume timeout fires (§4.5), then
// transitions back to running, recording a synthetic system message on
// timeout and draining any messages that arrived.
func (e *Engine) awaitReply(ctx context.Context) error {
	e.agent.Status = models.AgentStatusWaiting
	e.emit(models.EventStateTransition, map[string]any{"status": "waiting"})

	_, timedOut, err := e.onWait(ctx)
	if err != nil {
		return err
	}

	if timedOut {
		e.agent.State.Messages = append(e.agent.State.Messages, models.Message{
			Role:      models.RoleSystem,
			Text:      "No reply arrived within the auto-resume timeout; continuing.",
			CreatedAt: time.Now(),
		})
	}

	e.agent.Status = models.AgentStatusRunning
	e.emit(models.EventStateTransition, map[string]any{"status": "running"})

	e.drainInboxAsMessage()
	return nil
}

// drainInboxAsMessage folds any unread inbound messages into a single
// system message appended to state, so a finish call refused for unread
// messages (§4.6) makes progress on the next iteration instead of
// looping forever.
func (e *Engine) drainInboxAsMessage() {
	if e.inbox == nil {
		return
	}
	msgs, err := e.inbox.Receive(e.agent.ID)
	if err != nil || len(msgs) == 0 {
		return
	}

	var body string
	for _, m := range msgs {
		body += fmt.Sprintf("[from %s] %s\n", m.From, m.Body)
	}
	e.agent.State.Messages = append(e.agent.State.Messages, models.Message{
		Role:      models.RoleSystem,
		Text:      body,
		CreatedAt: time.Now(),
	})
}

func (e *Engine) fail(reason string) {
	e.agent.Status = models.AgentStatusFailed
	e.agent.FailureReason = reason
	e.emit(models.EventStateTransition, map[string]any{"status": "failed", "reason": reason})
}

func (e *Engine) emit(t models.EventType, data map[string]any) {
	if e.trace == nil {
		return
	}
	e.trace.OnEvent(models.Event{
		Type:      t,
		AgentID:   e.agent.ID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

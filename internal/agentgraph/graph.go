// Package agentgraph implements the Agent Graph (C6): the parent/child
// DAG, per-agent message queues, and the spawn/send/receive/wait/finish
// operations that mediate between Agent Engine instances (§4.6).
package agentgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// AutoResumeTimeout is how long wait(agent) blocks before the caller
// resumes on its own, recorded as a synthetic system message (§4.5).
const AutoResumeTimeout = 600 * time.Second

// SandboxOpener creates a worker for a newly spawned child agent via the
// Sandbox Runtime. Kept as an interface here so agentgraph does not
// import internal/sandbox directly.
type SandboxOpener interface {
	RegisterAgent(ctx context.Context, sandboxID, agentID string) (workerID string, err error)
}

// node is the graph's bookkeeping for one agent: its relationships and
// message queue.
type node struct {
	agent    *models.Agent
	children []string

	mu      sync.Mutex
	inbox   []models.AgentMessage
	waiters []chan struct{}
}

// Graph maintains the parent/child DAG and per-agent message queues.
type Graph struct {
	opener SandboxOpener

	mu    sync.RWMutex
	nodes map[string]*node
}

// New constructs an empty Graph.
func New(opener SandboxOpener) *Graph {
	return &Graph{opener: opener, nodes: make(map[string]*node)}
}

// AddRoot registers the scan's root agent, which has no parent.
func (g *Graph) AddRoot(agent *models.Agent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[agent.ID] = &node{agent: agent}
}

// Spawn creates a child of parentID with its own worker via the Sandbox
// Runtime. Every call allocates a brand-new agent ID parented to
// parentID, so the parent/child relation only ever grows a tree — a
// spawned agent can never already be an ancestor of its own parent, which
// is how the no-cycle invariant (§4.6) holds without an explicit check.
// Verifiers may never spawn children (SPEC_FULL.md §3).
func (g *Graph) Spawn(ctx context.Context, parentID string, kind models.AgentKind, sandboxID string) (*models.Agent, error) {
	g.mu.Lock()
	parent, ok := g.nodes[parentID]
	if !ok {
		g.mu.Unlock()
		return nil, strixerr.New(strixerr.KindConfig, fmt.Sprintf("spawn: unknown parent %q", parentID))
	}
	if parent.agent.Kind == models.AgentKindVerifier {
		g.mu.Unlock()
		return nil, strixerr.New(strixerr.KindConfig, "spawn: verifier agents may not spawn children")
	}
	g.mu.Unlock()

	child := models.NewAgent(uuid.NewString(), kind, parentID, sandboxID)

	if g.opener != nil {
		workerID, err := g.opener.RegisterAgent(ctx, sandboxID, child.ID)
		if err != nil {
			return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "spawn: registering worker for child agent")
		}
		child.WorkerID = workerID
	}

	g.mu.Lock()
	g.nodes[child.ID] = &node{agent: child}
	parent.children = append(parent.children, child.ID)
	g.mu.Unlock()

	return child, nil
}

// Send enqueues body from one agent to another.
func (g *Graph) Send(from, to, body string, now time.Time) error {
	g.mu.RLock()
	n, ok := g.nodes[to]
	g.mu.RUnlock()
	if !ok {
		return strixerr.New(strixerr.KindConfig, fmt.Sprintf("send: unknown recipient %q", to))
	}

	msg := models.AgentMessage{From: from, To: to, Body: body, SentAt: now}

	n.mu.Lock()
	n.inbox = append(n.inbox, msg)
	waiters := n.waiters
	n.waiters = nil
	n.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Receive drains every unread message for agent and marks them read.
func (g *Graph) Receive(agentID string) ([]models.AgentMessage, error) {
	n, err := g.node(agentID)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	var drained []models.AgentMessage
	for i := range n.inbox {
		if !n.inbox[i].Read {
			n.inbox[i].Read = true
			drained = append(drained, n.inbox[i])
		}
	}
	return drained, nil
}

// HasUnread reports whether agent has any unread inbound messages —
// the gate Finish checks (§4.6).
func (g *Graph) HasUnread(agentID string) (bool, error) {
	n, err := g.node(agentID)
	if err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.inbox {
		if !m.Read {
			return true, nil
		}
	}
	return false, nil
}

// Wait blocks until a message arrives for agent or deadline elapses,
// whichever is first; a deadline hit is the 600s auto-resume timeout
// (§4.5) when the caller passes AutoResumeTimeout.
func (g *Graph) Wait(ctx context.Context, agentID string, deadline time.Duration) (timedOut bool, err error) {
	n, err := g.node(agentID)
	if err != nil {
		return false, err
	}

	n.mu.Lock()
	for _, m := range n.inbox {
		if !m.Read {
			n.mu.Unlock()
			return false, nil
		}
	}
	ch := make(chan struct{})
	n.waiters = append(n.waiters, ch)
	n.mu.Unlock()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-ch:
		return false, nil
	case <-timer.C:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Finish transitions agent to finished. Refused while unread messages
// remain — the engine must drain them first (§4.6, §8).
func (g *Graph) Finish(agentID string) error {
	unread, err := g.HasUnread(agentID)
	if err != nil {
		return err
	}
	if unread {
		return strixerr.New(strixerr.KindConfig, "finish refused: agent has unread messages")
	}

	n, err := g.node(agentID)
	if err != nil {
		return err
	}
	n.agent.Status = models.AgentStatusFinished
	return nil
}

// CancelAll marks every running or waiting agent failed(cancelled) —
// invoked on scan-level cancellation (§5). Finished and already-failed
// agents keep their status.
func (g *Graph) CancelAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.agent.Status == models.AgentStatusRunning || n.agent.Status == models.AgentStatusWaiting {
			n.agent.Status = models.AgentStatusFailed
			n.agent.FailureReason = "cancelled"
		}
	}
}

// Children returns the direct children of agentID.
func (g *Graph) Children(agentID string) []string {
	n, err := g.node(agentID)
	if err != nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), n.children...)
}

// Agent returns the graph's agent record by ID.
func (g *Graph) Agent(agentID string) (*models.Agent, bool) {
	n, err := g.node(agentID)
	if err != nil {
		return nil, false
	}
	return n.agent, true
}

// Agents returns every agent currently tracked by the graph, for the Run
// Store's periodic statistics snapshot (§4.8, §6).
func (g *Graph) Agents() []*models.Agent {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Agent, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.agent)
	}
	return out
}

func (g *Graph) node(agentID string) (*node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[agentID]
	if !ok {
		return nil, strixerr.New(strixerr.KindConfig, fmt.Sprintf("unknown agent %q", agentID))
	}
	return n, nil
}

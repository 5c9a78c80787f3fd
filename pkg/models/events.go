package models

import "time"

// EventType enumerates the kinds of agent events the Run Store appends to
// an agent's events.jsonl stream (§4.8).
type EventType string

const (
	EventAgentSpawned    EventType = "agent.spawned"
	EventMessageSent     EventType = "agent.message"
	EventToolCall        EventType = "tool.call"
	EventToolResult      EventType = "tool.result"
	EventStateTransition EventType = "agent.state_transition"
	EventFindingSubmitted EventType = "finding.submitted"
	EventFindingAdjudicated EventType = "finding.adjudicated"
)

// Event is one append-only record in an agent's event stream. Fields not
// relevant to a given Type are left zero.
type Event struct {
	Type      EventType      `json:"type"`
	AgentID   string         `json:"agent_id"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

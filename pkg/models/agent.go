package models

// AgentKind distinguishes the role an agent plays in the graph, which in
// turn selects its system prompt template and default iteration limit.
type AgentKind string

const (
	AgentKindRoot     AgentKind = "root"
	AgentKindChild    AgentKind = "child"
	AgentKindVerifier AgentKind = "verifier"
)

// AgentStatus is the state-machine position of an agent (see §4.5).
type AgentStatus string

const (
	AgentStatusRunning  AgentStatus = "running"
	AgentStatusWaiting  AgentStatus = "waiting"
	AgentStatusFinished AgentStatus = "finished"
	AgentStatusFailed   AgentStatus = "failed"
)

// Default iteration budgets per AgentKind.
const (
	IterationLimitRootChild = 300
	IterationLimitVerifier  = 50
)

// IterationLimitFor returns the default iteration budget for an AgentKind.
func IterationLimitFor(kind AgentKind) int {
	if kind == AgentKindVerifier {
		return IterationLimitVerifier
	}
	return IterationLimitRootChild
}

// Agent is one running instance of the agent engine.
type Agent struct {
	ID             string      `json:"id"`
	Kind           AgentKind   `json:"kind"`
	ParentID       string      `json:"parent_id,omitempty"`
	State          *AgentState `json:"state"`
	Status         AgentStatus `json:"status"`
	Iteration      int         `json:"iteration"`
	IterationLimit int         `json:"iteration_limit"`
	SandboxID      string      `json:"sandbox_id"`
	WorkerID       string      `json:"worker_id,omitempty"`

	// FailureReason records why a terminal status of failed/exhausted/stuck
	// was reached; empty for running/waiting/finished agents.
	FailureReason string `json:"failure_reason,omitempty"`
}

// NewAgent constructs an Agent in the running state with a fresh AgentState
// and the default iteration limit for its kind.
func NewAgent(id string, kind AgentKind, parentID, sandboxID string) *Agent {
	return &Agent{
		ID:             id,
		Kind:           kind,
		ParentID:       parentID,
		State:          NewAgentState(),
		Status:         AgentStatusRunning,
		IterationLimit: IterationLimitFor(kind),
		SandboxID:      sandboxID,
	}
}

// AgentState is the ordered conversation and bookkeeping for one agent.
// Mutated only by the owning Agent Engine instance — see the concurrency
// model's single-writer rule.
type AgentState struct {
	Messages []Message `json:"messages"`
	Usage    Usage     `json:"usage"`
	Actions  []Action  `json:"actions"`
	LastErr  string    `json:"last_error,omitempty"`
}

// NewAgentState returns an empty AgentState ready for the first message.
func NewAgentState() *AgentState {
	return &AgentState{Messages: make([]Message, 0, 16)}
}

// Usage accumulates LLM Gateway accounting for one agent.
type Usage struct {
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	CachedTokens   int64   `json:"cached_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	Requests       int64   `json:"requests"`
	FailedRequests int64   `json:"failed_requests"`
}

// Add merges a per-request accounting delta into the running totals.
func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CachedTokens += delta.CachedTokens
	u.CostUSD += delta.CostUSD
	u.Requests += delta.Requests
	u.FailedRequests += delta.FailedRequests
}

// Action records one tool invocation taken by the agent, independent of
// the message-level ToolCall record, for quick statistics and tracing.
type Action struct {
	ToolName   string `json:"tool_name"`
	Sandbox    bool   `json:"sandbox"`
	Succeeded  bool   `json:"succeeded"`
	DurationMS int64  `json:"duration_ms"`
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIterationLimitForVerifierIsLowerThanRootOrChild(t *testing.T) {
	assert.Equal(t, IterationLimitVerifier, IterationLimitFor(AgentKindVerifier))
	assert.Equal(t, IterationLimitRootChild, IterationLimitFor(AgentKindRoot))
	assert.Equal(t, IterationLimitRootChild, IterationLimitFor(AgentKindChild))
}

func TestNewAgentStartsRunningWithFreshState(t *testing.T) {
	a := NewAgent("agent-1", AgentKindChild, "parent-1", "sandbox-1")
	assert.Equal(t, AgentStatusRunning, a.Status)
	assert.Equal(t, "parent-1", a.ParentID)
	assert.Equal(t, IterationLimitRootChild, a.IterationLimit)
	assert.NotNil(t, a.State)
	assert.Empty(t, a.State.Messages)
}

func TestUsageAddAccumulatesAcrossCalls(t *testing.T) {
	var u Usage
	u.Add(Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.01, Requests: 1})
	u.Add(Usage{InputTokens: 20, OutputTokens: 0, CostUSD: 0.02, FailedRequests: 1})

	assert.Equal(t, int64(30), u.InputTokens)
	assert.Equal(t, int64(5), u.OutputTokens)
	assert.InDelta(t, 0.03, u.CostUSD, 1e-9)
	assert.Equal(t, int64(1), u.Requests)
	assert.Equal(t, int64(1), u.FailedRequests)
}

func TestScanEndIsSetOnlyOnce(t *testing.T) {
	s := &Scan{ID: "scan-1"}
	first := time.Now()
	s.End(first)
	assert.Equal(t, first, *s.EndedAt)

	s.End(first.Add(time.Hour))
	assert.Equal(t, first, *s.EndedAt, "a later End call must not clobber the original end time")
}

func TestToolDescriptorEqualComparesDescriptionAndSchema(t *testing.T) {
	a := ToolDescriptor{Name: "finish", Description: "d", Schema: []byte(`{}`), Sandbox: true, Parallelizable: false}
	b := a
	assert.True(t, a.Equal(b))

	b.Description = "different"
	assert.False(t, a.Equal(b))

	c := a
	c.Schema = []byte(`{"extra":true}`)
	assert.False(t, a.Equal(c))
}

func TestMessageIsSummaryRequiresTrueMetadataFlag(t *testing.T) {
	plain := Message{Text: "hi"}
	assert.False(t, plain.IsSummary())

	summary := Message{Metadata: map[string]any{"summary": true}}
	assert.True(t, summary.IsSummary())

	falseFlag := Message{Metadata: map[string]any{"summary": false}}
	assert.False(t, falseFlag.IsSummary())
}

func TestToolCallDoneReflectsEndedAt(t *testing.T) {
	tc := ToolCall{ID: "1", Name: "finish"}
	assert.False(t, tc.Done())

	now := time.Now()
	tc.EndedAt = &now
	assert.True(t, tc.Done())
}

func TestToolErrorFormatsKindAndMessage(t *testing.T) {
	err := &ToolError{Kind: "timeout", Message: "exceeded deadline"}
	assert.Equal(t, "timeout: exceeded deadline", err.Error())
}

func TestNewFindingReportStartsPending(t *testing.T) {
	r := NewFindingReport("f-1", "sqli", "injectable parameter")
	assert.Equal(t, FindingPending, r.Status)
	assert.Equal(t, "sqli", r.VulnerabilityType)
}

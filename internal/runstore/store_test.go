package runstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zBiTz/strix/pkg/models"
)

func TestOpenCreatesDirectoryLayout(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root, nil)
	require.NoError(t, err)

	for _, dir := range []string{agentsDir, pendingDir, verifiedDir, rejectedDir} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestWriteScanPersistsAtomically(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, nil)
	require.NoError(t, err)

	scan := &models.Scan{ID: "scan-1", Target: "https://example.com", ScanMode: models.ScanModeStandard, StartedAt: time.Now()}
	require.NoError(t, s.WriteScan(scan))

	data, err := os.ReadFile(filepath.Join(root, scanFile))
	require.NoError(t, err)
	var got models.Scan
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "scan-1", got.ID)

	_, err = os.Stat(filepath.Join(root, scanFile+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp file should not remain after rename")
}

func TestAppendEventAssignsIncreasingSequence(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendEvent(models.Event{Type: models.EventAgentSpawned, AgentID: "agent-1"}))
	require.NoError(t, s.AppendEvent(models.Event{Type: models.EventToolCall, AgentID: "agent-1"}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(root, agentsDir, "agent-1", eventsFile))
	require.NoError(t, err)

	lines := splitLines(data)
	require.Len(t, lines, 2)

	var first, second models.Event
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
}

func TestOnEventSwallowsErrorsAsTraceSinkContract(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, nil)
	require.NoError(t, err)

	// OnEvent must never panic even if the underlying write fails; it
	// implements engine.TraceSink, whose OnEvent has no error return.
	s.OnEvent(models.Event{Type: models.EventToolResult, AgentID: "agent-2"})
	require.NoError(t, s.Close())
}

func TestAdjudicateMovesVerifiedReportOutOfPending(t *testing.T) {
	root := t.TempDir()
	var notified *models.FindingReport
	s, err := Open(root, func(r *models.FindingReport) { notified = r })
	require.NoError(t, err)

	report := models.NewFindingReport("f-1", "sqli", "injectable parameter")
	require.NoError(t, s.SubmitFinding(report))

	report.Status = models.FindingVerified
	require.NoError(t, s.Adjudicate(report))

	_, err = os.Stat(filepath.Join(root, pendingDir, "f-1.json"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(root, verifiedDir, "f-1.json"))
	require.NoError(t, err)

	require.NotNil(t, notified)
	assert.Equal(t, "f-1", notified.ID)
}

func TestAdjudicateMovesRejectedReportWithoutNotifying(t *testing.T) {
	root := t.TempDir()
	notified := false
	s, err := Open(root, func(r *models.FindingReport) { notified = true })
	require.NoError(t, err)

	report := models.NewFindingReport("f-2", "xss", "reflected script")
	require.NoError(t, s.SubmitFinding(report))

	report.Status = models.FindingRejected
	require.NoError(t, s.Adjudicate(report))

	_, err = os.Stat(filepath.Join(root, rejectedDir, "f-2.json"))
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestToolCallCountTalliesOnlyToolResultEvents(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendEvent(models.Event{Type: models.EventAgentSpawned, AgentID: "agent-1"}))
	require.NoError(t, s.AppendEvent(models.Event{Type: models.EventToolResult, AgentID: "agent-1"}))
	require.NoError(t, s.AppendEvent(models.Event{Type: models.EventToolResult, AgentID: "agent-2"}))
	require.NoError(t, s.Close())

	assert.Equal(t, int64(2), s.ToolCallCount())
}

func TestWriteStatsPersistsSnapshot(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, nil)
	require.NoError(t, err)

	stats := Stats{ToolCalls: 12, TotalTokens: 4096, AgentsByStatus: map[string]int{"running": 1}}
	require.NoError(t, s.WriteStats(stats))

	data, err := os.ReadFile(filepath.Join(root, statsFile))
	require.NoError(t, err)
	var got Stats
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(12), got.ToolCalls)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	return out
}

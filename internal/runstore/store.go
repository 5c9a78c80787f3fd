// Package runstore implements the Run Store & Tracer (C8): an immutable
// append of events and artifacts into a per-run directory, with atomic
// moves between pending/verified/rejected and a periodic statistics
// snapshot (§4.8, §6).
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zBiTz/strix/pkg/models"
)

// layout, relative to a run's root directory (§6).
const (
	scanFile               = "scan.json"
	agentsDir              = "agents"
	eventsFile             = "events.jsonl"
	pendingDir             = "pending_verification"
	verifiedDir            = "vulnerability_reports"
	rejectedDir            = "rejected_false_positives"
	statsFile              = "stats.json"
)

// Store owns exclusive write access to one run directory. Safe for
// concurrent use across agents: each agent's events.jsonl is written
// under its own lock, and finding-report moves are atomic renames.
type Store struct {
	root string

	eventMu sync.Mutex
	events  map[string]*eventWriter // agentID -> writer

	toolCalls int64 // atomic: count of EventToolResult events appended

	onVerified func(report *models.FindingReport)
}

// eventWriter serialises appends to one agent's events.jsonl and tracks
// the next sequence number.
type eventWriter struct {
	mu   sync.Mutex
	file *os.File
	seq  int64
}

// Open creates the run directory layout under root (creating root if
// absent) and returns a Store ready for writes.
func Open(root string, onVerified func(report *models.FindingReport)) (*Store, error) {
	for _, dir := range []string{agentsDir, pendingDir, verifiedDir, rejectedDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("runstore: creating %s: %w", dir, err)
		}
	}
	return &Store{root: root, events: make(map[string]*eventWriter), onVerified: onVerified}, nil
}

// WriteScan persists scan.json. Called once at scan creation and again
// to stamp EndedAt.
func (s *Store) WriteScan(scan *models.Scan) error {
	return writeJSONAtomic(filepath.Join(s.root, scanFile), scan)
}

// AppendEvent appends one event to agentID's events.jsonl, assigning it
// the next sequence number for that agent.
func (s *Store) AppendEvent(event models.Event) error {
	if event.Type == models.EventToolResult {
		atomic.AddInt64(&s.toolCalls, 1)
	}

	w, err := s.writerFor(event.AgentID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	event.Sequence = w.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("runstore: marshalling event: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("runstore: writing event: %w", err)
	}
	return w.file.Sync()
}

// OnEvent implements engine.TraceSink, letting the Agent Engine hand
// events directly to the store.
func (s *Store) OnEvent(event models.Event) {
	_ = s.AppendEvent(event)
}

func (s *Store) writerFor(agentID string) (*eventWriter, error) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	if w, ok := s.events[agentID]; ok {
		return w, nil
	}

	dir := filepath.Join(s.root, agentsDir, agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: creating agent dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runstore: opening events file: %w", err)
	}
	w := &eventWriter{file: f}
	s.events[agentID] = w
	return w, nil
}

// SubmitFinding writes a newly-pending report to pending_verification/.
func (s *Store) SubmitFinding(report *models.FindingReport) error {
	return writeJSONAtomic(filepath.Join(s.root, pendingDir, report.ID+".json"), report)
}

// Adjudicate moves a report from pending_verification/ into
// vulnerability_reports/ or rejected_false_positives/ depending on its
// current Status (§4.8, §8: exactly one of verified/rejected ever holds
// a given report). The report's updated content is written in place at
// its pending path first, then moved with a single os.Rename, so the
// only state transition a crash can land on is "still pending" (retried
// on the next adjudication attempt) or "moved" — never present in both
// directories at once.
func (s *Store) Adjudicate(report *models.FindingReport) error {
	dest := rejectedDir
	if report.Status == models.FindingVerified {
		dest = verifiedDir
	}

	pendingPath := filepath.Join(s.root, pendingDir, report.ID+".json")
	destPath := filepath.Join(s.root, dest, report.ID+".json")

	if err := writeJSONAtomic(pendingPath, report); err != nil {
		return err
	}
	if err := os.Rename(pendingPath, destPath); err != nil {
		return fmt.Errorf("runstore: moving adjudicated report: %w", err)
	}

	if report.Status == models.FindingVerified && s.onVerified != nil {
		s.onVerified(report)
	}
	return nil
}

// Stats is the periodic scan-wide snapshot written to stats.json
// (§4.8, SPEC_FULL.md §3).
type Stats struct {
	ToolCalls        int64          `json:"tool_calls"`
	TotalTokens      int64          `json:"total_tokens"`
	TotalCostUSD     float64        `json:"total_cost_usd"`
	AgentsByStatus   map[string]int `json:"agents_by_status"`
	PendingFindings  int            `json:"pending_findings"`
	VerifiedFindings int            `json:"verified_findings"`
	RejectedFindings int            `json:"rejected_findings"`
}

// WriteStats persists a Stats snapshot.
func (s *Store) WriteStats(stats Stats) error {
	return writeJSONAtomic(filepath.Join(s.root, statsFile), stats)
}

// ToolCallCount returns the running count of completed tool calls across
// every agent, maintained from AppendEvent rather than read from any
// single AgentState so a stats snapshot never races the owning Agent
// Engine's single-writer mutation of its own state (§5).
func (s *Store) ToolCallCount() int64 {
	return atomic.LoadInt64(&s.toolCalls)
}

// Close flushes and closes every open agent event file.
func (s *Store) Close() error {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	var firstErr error
	for _, w := range s.events {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeJSONAtomic writes v to path via a temp-file-then-rename so that
// readers never observe a partially written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("runstore: marshalling %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("runstore: writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("runstore: renaming into place %s: %w", filepath.Base(path), err)
	}
	return nil
}

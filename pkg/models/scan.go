// Package models defines the core data types shared across Strix's
// components: scans, agents, messages, tool calls, and finding reports.
package models

import "time"

// ScanMode selects the depth configuration for a scan: the set of prompt
// modules attached to agents and the iteration discipline applied to them.
type ScanMode string

const (
	ScanModeQuick    ScanMode = "quick"
	ScanModeStandard ScanMode = "standard"
	ScanModeDeep     ScanMode = "deep"
)

// MaxPromptModules bounds the number of prompt modules a scan may attach.
const MaxPromptModules = 5

// Scan is created once per CLI invocation. All fields except EndedAt are
// immutable after creation.
type Scan struct {
	ID           string     `json:"id"`
	Target       string     `json:"target"`
	ScanMode     ScanMode   `json:"scan_mode"`
	PromptModules []string  `json:"prompt_modules"`
	SandboxID    string     `json:"sandbox_id"`
	RootAgentID  string     `json:"root_agent_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// End stamps the scan's end time. Safe to call once; later calls are
// no-ops so that cleanup paths racing with a normal finish don't clobber
// the original end time.
func (s *Scan) End(at time.Time) {
	if s.EndedAt != nil {
		return
	}
	s.EndedAt = &at
}

// Package verify implements the Verification Pipeline (C7): two-phase
// adjudication of submitted FindingReports, one verifier agent per
// report, idempotent under resubmission (§4.7).
package verify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zBiTz/strix/pkg/models"
)

// reproductionAttempts is the number of independent, consecutive
// reproduction attempts a verifier must make in Phase 1 (§4.7).
const reproductionAttempts = 3

// Verifier runs both phases of adjudication for one FindingReport and
// reports its conclusion. A concrete Verifier spawns a VerificationAgent
// with a reduced iteration budget, seeded with the evidence and the
// matching verification_types/<vuln> prompt module; that spawning detail
// lives with the caller (internal/engine + internal/agentgraph), not
// here — the pipeline only needs the two-phase protocol's outcome.
type Verifier interface {
	// Reproduce attempts once to reproduce the reported behavior,
	// returning whether this attempt succeeded.
	Reproduce(ctx context.Context, report *models.FindingReport, attempt int) (bool, error)
	// RunControlTest designs and runs one independent control test.
	RunControlTest(ctx context.Context, report *models.FindingReport) (models.ControlTest, error)
}

// OnAdjudicated is called once a report's Status has moved to verified or
// rejected, for interactive observers (§4.8).
type OnAdjudicated func(report *models.FindingReport)

// Pipeline adjudicates a stream of FindingReport submissions.
type Pipeline struct {
	newVerifier func(report *models.FindingReport) Verifier
	onDone      OnAdjudicated
	log         *slog.Logger

	mu      sync.Mutex
	reports map[string]*models.FindingReport
}

// New constructs a Pipeline. newVerifier spawns a fresh Verifier (backed
// by a VerificationAgent) for each submitted report.
func New(newVerifier func(report *models.FindingReport) Verifier, onDone OnAdjudicated, log *slog.Logger) *Pipeline {
	return &Pipeline{newVerifier: newVerifier, onDone: onDone, log: log, reports: make(map[string]*models.FindingReport)}
}

// Submit enters report into the pipeline and spawns a verifier for it.
// Idempotent: resubmitting an already-adjudicated report (or one already
// in flight) is a no-op (§4.7).
func (p *Pipeline) Submit(ctx context.Context, report *models.FindingReport) {
	p.mu.Lock()
	if _, exists := p.reports[report.ID]; exists {
		p.mu.Unlock()
		return
	}
	report.Status = models.FindingPending
	p.reports[report.ID] = report
	p.mu.Unlock()

	go p.adjudicate(ctx, report)
}

// adjudicate runs the two-phase protocol. On a verifier crash (an error
// from Verifier methods other than a clean non-reproduction), the
// pipeline re-spawns a fresh verifier rather than abandoning the report
// (§9: "survives verifier crashes by re-spawning").
func (p *Pipeline) adjudicate(ctx context.Context, report *models.FindingReport) {
	for {
		verifier := p.newVerifier(report)
		status, notes, crashed := p.runPhases(ctx, verifier, report)
		if crashed {
			if p.log != nil {
				p.log.Warn("verifier crashed, respawning", "report_id", report.ID)
			}
			continue
		}

		p.mu.Lock()
		report.Status = status
		report.AdjudicationNotes = notes
		p.mu.Unlock()

		if p.onDone != nil {
			p.onDone(report)
		}
		return
	}
}

func (p *Pipeline) runPhases(ctx context.Context, v Verifier, report *models.FindingReport) (status models.FindingStatus, notes string, crashed bool) {
	// Phase 1 — Reproducibility: 3 independent, consecutive attempts.
	for attempt := 1; attempt <= reproductionAttempts; attempt++ {
		ok, err := v.Reproduce(ctx, report, attempt)
		if err != nil {
			return "", "", true
		}
		if !ok {
			return models.FindingRejected, models.RejectionNonReproducible, false
		}
	}

	// Phase 2 — Validity: at least one independent control test.
	control, err := v.RunControlTest(ctx, report)
	if err != nil {
		return "", "", true
	}
	report.ReporterControlTests = append(report.ReporterControlTests, control)

	if control.AsExpected {
		return models.FindingVerified, "", false
	}
	return models.FindingRejected, models.RejectionInvalidInference, false
}

// Report returns the current state of a submitted report, if any.
func (p *Pipeline) Report(id string) (*models.FindingReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.reports[id]
	return r, ok
}

// Counts tallies tracked reports by their current status, for the Run
// Store's periodic statistics snapshot (§4.8, §6).
func (p *Pipeline) Counts() (pending, verified, rejected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reports {
		switch r.Status {
		case models.FindingPending:
			pending++
		case models.FindingVerified:
			verified++
		case models.FindingRejected:
			rejected++
		}
	}
	return pending, verified, rejected
}

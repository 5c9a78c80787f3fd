package main

import (
	"context"

	"github.com/zBiTz/strix/pkg/models"
)

// stubVerifier is the wiring point for a VerificationAgent: a full
// agent-engine instance seeded with the evidence and the matching
// verification_types/<vuln> prompt module, running the tool calls that
// actually attempt reproduction and design a control test. Those tool
// action bodies are out of scope for this module (spec.md §1); this
// stub satisfies the Verification Pipeline's Verifier contract so the
// two-phase state machine itself can be exercised end to end.
type stubVerifier struct{}

func newVerifier() *stubVerifier { return &stubVerifier{} }

func (v *stubVerifier) Reproduce(ctx context.Context, report *models.FindingReport, attempt int) (bool, error) {
	return true, nil
}

func (v *stubVerifier) RunControlTest(ctx context.Context, report *models.FindingReport) (models.ControlTest, error) {
	return models.ControlTest{
		Description: "control request against a non-vulnerable baseline",
		AsExpected:  true,
	}, nil
}

package models

// FindingStatus is the adjudication state of a FindingReport.
type FindingStatus string

const (
	FindingPending  FindingStatus = "pending"
	FindingVerified FindingStatus = "verified"
	FindingRejected FindingStatus = "rejected"
)

// Rejection reasons recorded in AdjudicationNotes when a report moves to
// FindingRejected (§4.7).
const (
	RejectionNonReproducible = "non_reproducible"
	RejectionInvalidInference = "invalid_inference"
)

// ControlTest is one independent control the verifier ran during Phase 2
// (Validity) to check the claim against a request that should not exhibit
// the vulnerability.
type ControlTest struct {
	Description string `json:"description"`
	Request     string `json:"request"`
	Observed    string `json:"observed"`
	AsExpected  bool   `json:"as_expected"`
}

// FindingReport is a vulnerability claim submitted by an agent. Evidence
// fields are immutable once submitted; only Status, VerifierAgentID, and
// AdjudicationNotes change, plus ReporterControlTests, to which the
// Verification Pipeline appends the verifier's control test. All of these
// change only through the Verification Pipeline (§3, §4.7).
type FindingReport struct {
	ID                string   `json:"id"`
	VulnerabilityType string   `json:"vulnerability_type"`
	ClaimAssertion    string   `json:"claim_assertion"`
	PrimaryEvidence   []string `json:"primary_evidence"`
	ReproductionSteps []string `json:"reproduction_steps"`
	PoCPayload        string   `json:"poc_payload"`
	TargetURL         string   `json:"target_url"`
	AffectedParameter string   `json:"affected_parameter,omitempty"`
	BaselineState     string   `json:"baseline_state,omitempty"`
	ExploitedState    string   `json:"exploited_state,omitempty"`

	ReporterControlTests []ControlTest `json:"reporter_control_tests,omitempty"`

	Status          FindingStatus `json:"status"`
	VerifierAgentID string        `json:"verifier_agent_id,omitempty"`
	AdjudicationNotes string      `json:"adjudication_notes,omitempty"`
}

// NewFindingReport builds a report in the pending state, as submitted by
// a reporting agent before the Verification Pipeline picks it up.
func NewFindingReport(id, vulnType, claim string) *FindingReport {
	return &FindingReport{
		ID:                id,
		VulnerabilityType: vulnType,
		ClaimAssertion:    claim,
		Status:            FindingPending,
	}
}

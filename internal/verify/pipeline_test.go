package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zBiTz/strix/pkg/models"
)

type scriptedVerifier struct {
	mu            sync.Mutex
	reproduce     []bool
	reproduceErr  error
	control       models.ControlTest
	controlErr    error
	reproduceCall int
}

func (v *scriptedVerifier) Reproduce(ctx context.Context, report *models.FindingReport, attempt int) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reproduceCall++
	if v.reproduceErr != nil {
		return false, v.reproduceErr
	}
	if attempt-1 >= len(v.reproduce) {
		return v.reproduce[len(v.reproduce)-1], nil
	}
	return v.reproduce[attempt-1], nil
}

func (v *scriptedVerifier) RunControlTest(ctx context.Context, report *models.FindingReport) (models.ControlTest, error) {
	if v.controlErr != nil {
		return models.ControlTest{}, v.controlErr
	}
	return v.control, nil
}

func waitForStatus(t *testing.T, p *Pipeline, id string, want models.FindingStatus) *models.FindingReport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := p.Report(id)
		if ok && r.Status == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("report %s did not reach status %s in time", id, want)
	return nil
}

func TestPipelineVerifiesWhenAllReproductionsAndControlSucceed(t *testing.T) {
	v := &scriptedVerifier{
		reproduce: []bool{true, true, true},
		control:   models.ControlTest{AsExpected: true},
	}
	var done sync.WaitGroup
	done.Add(1)
	p := New(func(report *models.FindingReport) Verifier { return v }, func(report *models.FindingReport) { done.Done() }, nil)

	report := models.NewFindingReport("f-1", "sqli", "injectable parameter")
	p.Submit(context.Background(), report)

	done.Wait()
	got := waitForStatus(t, p, "f-1", models.FindingVerified)
	assert.Equal(t, models.FindingVerified, got.Status)
	require.Len(t, got.ReporterControlTests, 1)
}

func TestPipelineRejectsOnNonReproducibleAttempt(t *testing.T) {
	v := &scriptedVerifier{reproduce: []bool{true, false, true}}
	var done sync.WaitGroup
	done.Add(1)
	p := New(func(report *models.FindingReport) Verifier { return v }, func(report *models.FindingReport) { done.Done() }, nil)

	report := models.NewFindingReport("f-2", "xss", "reflected script")
	p.Submit(context.Background(), report)

	done.Wait()
	got := waitForStatus(t, p, "f-2", models.FindingRejected)
	assert.Equal(t, models.RejectionNonReproducible, got.AdjudicationNotes)
}

func TestPipelineRejectsWhenControlTestDoesNotMatchExpectation(t *testing.T) {
	v := &scriptedVerifier{
		reproduce: []bool{true, true, true},
		control:   models.ControlTest{AsExpected: false},
	}
	var done sync.WaitGroup
	done.Add(1)
	p := New(func(report *models.FindingReport) Verifier { return v }, func(report *models.FindingReport) { done.Done() }, nil)

	report := models.NewFindingReport("f-3", "idor", "cross-tenant access")
	p.Submit(context.Background(), report)

	done.Wait()
	got := waitForStatus(t, p, "f-3", models.FindingRejected)
	assert.Equal(t, models.RejectionInvalidInference, got.AdjudicationNotes)
}

// TestPipelineRespawnsVerifierAfterCrash exercises the crash-survivable
// re-spawn path (§9): the first verifier errors out of Reproduce, and the
// pipeline must construct a fresh Verifier for the same report rather
// than abandoning it.
func TestPipelineRespawnsVerifierAfterCrash(t *testing.T) {
	crashed := &scriptedVerifier{reproduceErr: errors.New("verifier process died")}
	healthy := &scriptedVerifier{
		reproduce: []bool{true, true, true},
		control:   models.ControlTest{AsExpected: true},
	}

	var mu sync.Mutex
	spawnCount := 0
	var done sync.WaitGroup
	done.Add(1)

	p := New(func(report *models.FindingReport) Verifier {
		mu.Lock()
		defer mu.Unlock()
		spawnCount++
		if spawnCount == 1 {
			return crashed
		}
		return healthy
	}, func(report *models.FindingReport) { done.Done() }, nil)

	report := models.NewFindingReport("f-4", "ssrf", "internal metadata fetch")
	p.Submit(context.Background(), report)

	done.Wait()
	got := waitForStatus(t, p, "f-4", models.FindingVerified)
	assert.Equal(t, models.FindingVerified, got.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, spawnCount, 2)
}

func TestSubmitIsIdempotentForAlreadyTrackedReport(t *testing.T) {
	v := &scriptedVerifier{reproduce: []bool{true, true, true}, control: models.ControlTest{AsExpected: true}}
	var done sync.WaitGroup
	done.Add(1)
	spawned := 0
	var mu sync.Mutex

	p := New(func(report *models.FindingReport) Verifier {
		mu.Lock()
		spawned++
		mu.Unlock()
		return v
	}, func(report *models.FindingReport) { done.Done() }, nil)

	report := models.NewFindingReport("f-5", "lfi", "path traversal")
	p.Submit(context.Background(), report)
	p.Submit(context.Background(), report) // duplicate submission, must be a no-op

	done.Wait()
	waitForStatus(t, p, "f-5", models.FindingVerified)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, spawned)
}

func TestReportReturnsFalseForUnknownID(t *testing.T) {
	p := New(func(report *models.FindingReport) Verifier { return &scriptedVerifier{} }, nil, nil)
	_, ok := p.Report("nonexistent")
	assert.False(t, ok)
}

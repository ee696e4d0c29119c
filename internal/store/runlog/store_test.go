package runlog

import (
	"context"
	"path/filepath"
	"testing"

	"arbiter/internal/arbitration"
	"arbiter/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(traceID string) orchestrator.Result {
	return orchestrator.Result{
		TraceID:     traceID,
		Query:       "design a queue",
		FinalOutput: "use a ring buffer",
		Provenance: orchestrator.Provenance{
			Stages: []orchestrator.StageTrace{
				{Stage: "strategy", Role: "strategist", ProviderID: "m1", Preview: "plan"},
				{Stage: "critique", Role: "critic", ProviderID: "m1", Preview: "risks"},
				{Stage: "synthesis", Role: "synthesizer", ProviderID: "m1", Preview: "merged"},
			},
			ArbitrationDecision: arbitration.DecisionSelectedBest,
			Divergence:          0.12,
			Scores: map[string]arbitration.ScoreBreakdown{
				arbitration.CandidateA: {Composite: 0.91, Coherence: 0.8, Safety: 1},
				arbitration.CandidateB: {Composite: 0.88, Coherence: 0.7, Safety: 1},
			},
			WinningComposite:  0.91,
			SelectedCandidate: arbitration.CandidateA,
		},
	}
}

func TestSaveAndGetRunRoundTrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	res := sampleResult("trace-1")
	require.NoError(t, store.SaveRun(ctx, res))

	rec, err := store.GetRun(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, res.Query, rec.Query)
	assert.Equal(t, res.FinalOutput, rec.FinalOutput)
	assert.Equal(t, string(arbitration.DecisionSelectedBest), rec.ArbitrationDecision)
	assert.Len(t, rec.Stages, 3)
	assert.InDelta(t, 0.91, rec.Scores[arbitration.CandidateA].Composite, 1e-9)
}

func TestSaveRunIdempotentOnTraceID(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, sampleResult("trace-dup")))
	require.NoError(t, store.SaveRun(ctx, sampleResult("trace-dup")))

	recs, err := store.ListRuns(ctx, RunQuery{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestGetRunNotFound(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsFilterByDecision(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, sampleResult("trace-a")))
	refined := sampleResult("trace-b")
	refined.Provenance.ArbitrationDecision = arbitration.DecisionRefinementNeeded
	require.NoError(t, store.SaveRun(ctx, refined))

	recs, err := store.ListRuns(ctx, RunQuery{Decision: string(arbitration.DecisionRefinementNeeded)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "trace-b", recs[0].TraceID)
}

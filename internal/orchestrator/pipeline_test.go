package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"arbiter/internal/arbitration"
	"arbiter/internal/gateway/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
	id string
}

func (m *MockGenerator) ID() string {
	if m.id == "" {
		return "mock-model"
	}
	return m.id
}

func (m *MockGenerator) Enabled() bool { return true }

func (m *MockGenerator) Generate(ctx context.Context, messages []provider.Message) (provider.Generation, error) {
	args := m.Called(ctx, messages)
	return args.Get(0).(provider.Generation), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) ID() string { return "mock-embedder" }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

type recordingObserver struct {
	runs []Result
}

func (r *recordingObserver) OnRunCompleted(_ context.Context, res Result) {
	r.runs = append(r.runs, res)
}

// 连接词密度拉满，coherence=1.0。
const coherentText = "Because of X, therefore Y. However, thus consequently Z."

func newTestOrchestrator(gen *MockGenerator, emb *MockEmbedder) *Orchestrator {
	engine := arbitration.NewEngine(arbitration.DefaultConfig(), emb)
	return New(Config{ConfidenceThreshold: 0.7}, []provider.GenerationProvider{gen}, engine)
}

func TestOrchestrateHighConfidenceSkipsVerify(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: coherentText, SafetyScore: 1, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "Design a caching layer")
	require.NoError(t, err)

	// divergence=0、safety=1、coherence=1 → composite=1.0 ≥ 0.7，不触发复核。
	gen.AssertNumberOfCalls(t, "Generate", 3)
	emb.AssertNumberOfCalls(t, "Embed", 2)
	assert.Len(t, res.Provenance.Stages, 3)
	assert.False(t, res.Provenance.Verified)
	assert.Equal(t, arbitration.DecisionSelectedBest, res.Provenance.ArbitrationDecision)
	assert.Equal(t, coherentText, res.FinalOutput)
	assert.NotEmpty(t, res.TraceID)
}

func TestOrchestrateLowConfidenceTriggersVerify(t *testing.T) {
	gen := new(MockGenerator)
	// 低安全评分压低 composite：0.4*1 + 0.4*0.2 + 0.2*0 = 0.48 < 0.7。
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: "plain output", SafetyScore: 0.2, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "Design a caching layer")
	require.NoError(t, err)

	gen.AssertNumberOfCalls(t, "Generate", 4)
	assert.Len(t, res.Provenance.Stages, 4)
	assert.True(t, res.Provenance.Verified)
	assert.Equal(t, "verify", res.Provenance.Stages[3].Stage)
}

func TestOrchestrateExplicitZeroThresholdNeverVerifies(t *testing.T) {
	gen := new(MockGenerator)
	// composite=0.48，任何正阈值都会触发复核；阈值 0 意味着永不复核。
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: "plain output", SafetyScore: 0.2, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	engine := arbitration.NewEngine(arbitration.DefaultConfig(), emb)
	o := New(Config{ConfidenceThreshold: 0}, []provider.GenerationProvider{gen}, engine)

	res, err := o.Orchestrate(context.Background(), "Design a caching layer")
	require.NoError(t, err)

	gen.AssertNumberOfCalls(t, "Generate", 3)
	assert.Len(t, res.Provenance.Stages, 3)
	assert.False(t, res.Provenance.Verified)
}

func TestOrchestrateOutOfRangeConfigThresholdFallsBack(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: "plain output", SafetyScore: 0.2, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	engine := arbitration.NewEngine(arbitration.DefaultConfig(), emb)
	// 越界值回落到 0.7，composite=0.48 < 0.7 触发复核。
	o := New(Config{ConfidenceThreshold: -1}, []provider.GenerationProvider{gen}, engine)

	res, err := o.Orchestrate(context.Background(), "query")
	require.NoError(t, err)
	gen.AssertNumberOfCalls(t, "Generate", 4)
	assert.True(t, res.Provenance.Verified)
}

func TestOrchestratePerCallThresholdOverridesDefault(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: "plain output", SafetyScore: 0.2, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	// 配置默认 0.7，本次调用传 0.3：composite=0.48 ≥ 0.3，不复核。
	o := newTestOrchestrator(gen, emb)
	res, err := o.OrchestrateWithThreshold(context.Background(), "query", 0.3)
	require.NoError(t, err)
	gen.AssertNumberOfCalls(t, "Generate", 3)
	assert.False(t, res.Provenance.Verified)
}

func TestOrchestratePerCallThresholdRejectsOutOfRange(t *testing.T) {
	gen := new(MockGenerator)
	emb := new(MockEmbedder)
	o := newTestOrchestrator(gen, emb)

	_, err := o.OrchestrateWithThreshold(context.Background(), "query", 1.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, arbitration.ErrInvalidInput)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestOrchestrateEmptyQueryRejectedBeforeAnyCall(t *testing.T) {
	gen := new(MockGenerator)
	emb := new(MockEmbedder)
	o := newTestOrchestrator(gen, emb)

	_, err := o.Orchestrate(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, arbitration.ErrInvalidInput)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestOrchestrateGenerationFailureAbortsWholeCall(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(provider.Generation{Text: coherentText, SafetyScore: 1, SafetyKnown: true}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(provider.Generation{}, fmt.Errorf("%w: backend down", provider.ErrUnavailable))
	emb := new(MockEmbedder)

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	// 无部分 provenance。
	assert.Equal(t, Result{}, res)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestOrchestrateEmbeddingFailureDegradesAndVerifies(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: "plain output"}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("embedding backend down"))

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "query")
	require.NoError(t, err, "嵌入失败降级而非中止")

	assert.True(t, res.Provenance.Degraded)
	assert.Equal(t, 1.0, res.Provenance.Divergence)
	assert.Equal(t, arbitration.DecisionRefinementNeeded, res.Provenance.ArbitrationDecision)
	// 语义重合为 0 时 composite 最高 0.6，必然触发复核。
	assert.True(t, res.Provenance.Verified)
	gen.AssertNumberOfCalls(t, "Generate", 4)
}

func TestOrchestrateCancelledContextAborts(t *testing.T) {
	gen := new(MockGenerator)
	ctx, cancel := context.WithCancel(context.Background())
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{}, fmt.Errorf("%w: %v", provider.ErrUnavailable, context.Canceled))
	emb := new(MockEmbedder)
	cancel()

	o := newTestOrchestrator(gen, emb)
	_, err := o.Orchestrate(ctx, "query")
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestOrchestrateStageOrderingAndHistoryGrowth(t *testing.T) {
	gen := new(MockGenerator)
	var sizes []int
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			msgs := args.Get(1).([]provider.Message)
			sizes = append(sizes, len(msgs))
		}).
		Return(provider.Generation{Text: coherentText, SafetyScore: 1, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "query")
	require.NoError(t, err)

	// system+query / +strategy / +critique：每个阶段的 prompt 在前一阶段完成后才构造。
	assert.Equal(t, []int{2, 3, 4}, sizes)
	require.Len(t, res.Provenance.Stages, 3)
	assert.Equal(t, "strategy", res.Provenance.Stages[0].Stage)
	assert.Equal(t, "critique", res.Provenance.Stages[1].Stage)
	assert.Equal(t, "synthesis", res.Provenance.Stages[2].Stage)
}

func TestOrchestrateEndToEndScenario(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: coherentText, SafetyScore: 1, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{0.6, 0.8}, nil)

	obs := &recordingObserver{}
	o := newTestOrchestrator(gen, emb)
	o.SetObserver(obs)

	res, err := o.Orchestrate(context.Background(), "Design a caching layer")
	require.NoError(t, err)

	assert.Contains(t, []arbitration.Decision{
		arbitration.DecisionSelectedBest,
		arbitration.DecisionRefinementNeeded,
	}, res.Provenance.ArbitrationDecision)
	assert.GreaterOrEqual(t, res.Provenance.WinningComposite, 0.0)
	assert.LessOrEqual(t, res.Provenance.WinningComposite, 1.0)
	require.Len(t, obs.runs, 1)
	assert.Equal(t, res.TraceID, obs.runs[0].TraceID)
}

func TestOrchestratePreviewBounded(t *testing.T) {
	long := make([]byte, 0, 1000)
	for i := 0; i < 500; i++ {
		long = append(long, 'a', 'b')
	}
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(provider.Generation{Text: string(long), SafetyScore: 1, SafetyKnown: true}, nil)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float64{1, 0}, nil)

	o := newTestOrchestrator(gen, emb)
	res, err := o.Orchestrate(context.Background(), "query")
	require.NoError(t, err)
	for _, st := range res.Provenance.Stages {
		assert.LessOrEqual(t, len([]rune(st.Preview)), PreviewLimit)
	}
}

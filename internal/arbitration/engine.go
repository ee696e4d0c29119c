package arbitration

import (
	"context"
	"fmt"
	"strings"

	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Config 仲裁引擎的阈值与权重；构造后不可变。
// 多个不同配置的引擎实例可以在并发负载下共存，不存在包级可变状态。
type Config struct {
	DivergenceThreshold float64
	SemanticWeight      float64
	SafetyWeight        float64
	CoherenceWeight     float64
}

// DefaultConfig 返回默认配置：阈值 0.3，权重 0.4/0.4/0.2。
func DefaultConfig() Config {
	return Config{
		DivergenceThreshold: 0.3,
		SemanticWeight:      0.4,
		SafetyWeight:        0.4,
		CoherenceWeight:     0.2,
	}
}

// CompositeScore 加权综合分：w_sem·语义重合 + w_safety·安全置信 + w_coh·连贯性。
// 权重按约定和为 1.0；输入均在 [0,1] 时结果落在 [0,1]。
func (c Config) CompositeScore(semanticOverlap, safetyConfidence, coherence float64) float64 {
	return c.SemanticWeight*semanticOverlap + c.SafetyWeight*safetyConfidence + c.CoherenceWeight*coherence
}

// Engine 在两个候选输出之间裁决：哪个可信、分歧是否大到需要再精炼一轮。
// 除发起嵌入调用外无任何副作用；相同输入与相同嵌入结果下输出逐位一致。
type Engine struct {
	cfg      Config
	embedder provider.EmbeddingProvider
}

func NewEngine(cfg Config, embedder provider.EmbeddingProvider) *Engine {
	return &Engine{cfg: cfg, embedder: embedder}
}

// Config 返回引擎当前配置（值拷贝）。
func (e *Engine) Config() Config {
	return e.cfg
}

// Arbitrate 对两个候选输出进行仲裁。
// 两次嵌入调用相互独立，并发发起；任一失败不会中断流水线，
// 而是强制 divergence=1.0 并标记 Degraded，使结果走 consensus 精炼路径。
func (e *Engine) Arbitrate(ctx context.Context, outputA, outputB AgentOutput) (Result, error) {
	if strings.TrimSpace(outputA.Text) == "" || strings.TrimSpace(outputB.Text) == "" {
		return Result{}, fmt.Errorf("%w: candidate text cannot be empty", ErrInvalidInput)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	divergence, degraded, err := e.measureDivergence(ctx, outputA.Text, outputB.Text)
	if err != nil {
		return Result{}, err
	}
	semanticOverlap := 1 - divergence

	scoreA := e.scoreCandidate(semanticOverlap, outputA)
	scoreB := e.scoreCandidate(semanticOverlap, outputB)

	// 平分时选 A：确定性的文档化决策，保证幂等。
	selectedID := CandidateA
	selected := outputA
	if scoreB.Composite > scoreA.Composite {
		selectedID = CandidateB
		selected = outputB
	}

	decision := DecisionSelectedBest
	if divergence > e.cfg.DivergenceThreshold {
		decision = DecisionRefinementNeeded
	}

	return Result{
		Selected:   selected,
		SelectedID: selectedID,
		Divergence: divergence,
		Scores: map[string]ScoreBreakdown{
			CandidateA: scoreA,
			CandidateB: scoreB,
		},
		Decision: decision,
		Degraded: degraded,
	}, nil
}

func (e *Engine) scoreCandidate(semanticOverlap float64, out AgentOutput) ScoreBreakdown {
	safety := out.SafetyScore
	if !out.SafetyKnown {
		safety = 1.0
	}
	coherence := ScoreCoherence(out.Text)
	return ScoreBreakdown{
		Composite: e.cfg.CompositeScore(semanticOverlap, safety, coherence),
		Coherence: coherence,
		Safety:    safety,
	}
}

// measureDivergence 并发取两个嵌入并计算分歧度。
// 返回 degraded=true 表示嵌入不可用、分歧被强制为最大值；
// 维度不一致属于后端契约被破坏，按 ErrInvalidInput 上抛。
func (e *Engine) measureDivergence(ctx context.Context, textA, textB string) (float64, bool, error) {
	if e.embedder == nil {
		logger.Warnf("仲裁未配置嵌入后端，divergence 强制为 1.0")
		return 1.0, true, nil
	}
	var (
		vectors [2][]float64
		errs    [2]error
	)
	texts := [2]string{textA, textB}
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range texts {
		i := i
		eg.Go(func() error {
			vectors[i], errs[i] = e.embedder.Embed(egCtx, texts[i])
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return 0, false, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	for i, err := range errs {
		if err != nil {
			// 不能带着误导性的低分歧继续：嵌入失败即按最大分歧处理。
			logger.Warnf("候选 %d 嵌入失败，divergence 强制为 1.0: %v", i+1, err)
			return 1.0, true, nil
		}
	}
	divergence, err := ComputeDivergence(vectors[0], vectors[1])
	if err != nil {
		return 0, false, err
	}
	return divergence, false, nil
}

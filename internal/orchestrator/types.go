package orchestrator

import (
	"context"

	"arbiter/internal/arbitration"
)

// 中文说明：
// 编排结果与 provenance 数据结构。provenance 是有界的审计痕迹，
// 不是完整回放日志：每个实际执行过的阶段留一条 ≤200 字符的预览。

// PreviewLimit provenance 中单条预览的最大字符数（按 rune 计）。
const PreviewLimit = 200

// StageTrace 单个阶段的审计条目。
type StageTrace struct {
	Stage      string `json:"stage"`
	Role       string `json:"role,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Preview    string `json:"preview"`
	// SafetyKnown=false 表示该阶段的安全评分缺失、按「未知」记录。
	SafetyKnown bool  `json:"safety_known"`
	ElapsedMS   int64 `json:"elapsed_ms"`
}

// Provenance 一次编排的审计痕迹；只包含实际执行过的阶段
// （无复核 3 个，触发复核 4 个生成阶段）。
type Provenance struct {
	Stages              []StageTrace                          `json:"stages"`
	ArbitrationDecision arbitration.Decision                  `json:"arbitration_decision"`
	Divergence          float64                               `json:"divergence"`
	Scores              map[string]arbitration.ScoreBreakdown `json:"scores,omitempty"`
	WinningComposite    float64                               `json:"winning_composite"`
	SelectedCandidate   string                                `json:"selected_candidate"`
	Degraded            bool                                  `json:"degraded"`
	Verified            bool                                  `json:"verified"`
}

// Result 一次 Orchestrate 调用的最终返回值。
type Result struct {
	TraceID     string     `json:"trace_id"`
	Query       string     `json:"query"`
	FinalOutput string     `json:"final_output"`
	Provenance  Provenance `json:"provenance"`
}

// Observer 在一次编排成功完成后收到结果，用于落盘审计记录。
// 实现方失败不影响编排结果本身。
type Observer interface {
	OnRunCompleted(ctx context.Context, res Result)
}

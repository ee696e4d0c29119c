package arbitration

// 中文说明：
// 本文件定义仲裁引擎的输入输出数据结构，供引擎与编排器使用。
// 三类对象均为单次调用内的临时值对象，引擎自身不持久化任何输出。

// Role 流水线中的固定角色。
type Role string

const (
	RoleStrategist  Role = "strategist"
	RoleCritic      Role = "critic"
	RoleSynthesizer Role = "synthesizer"
	RoleVerifier    Role = "verifier"
)

// AgentOutput 单次 Agent 调用的产出；返回后不可变。
// SafetyKnown=false 表示后端未给出安全评分：打分时按 1.0 处理（与参考行为一致），
// 但这一「未知」状态必须透传到 provenance，避免被误读为「确认安全」。
type AgentOutput struct {
	Text        string  `json:"text"`
	Role        Role    `json:"role"`
	SafetyScore float64 `json:"safety_score"`
	SafetyKnown bool    `json:"safety_known"`
}

// Decision 仲裁结论。
type Decision string

const (
	DecisionSelectedBest     Decision = "selected_best"
	DecisionRefinementNeeded Decision = "consensus_refinement_needed"
)

// 候选方标识：A 固定为先到达的候选（平分时胜出）。
const (
	CandidateA = "model_a"
	CandidateB = "model_b"
)

// ScoreBreakdown 单个候选的打分明细，均在 [0,1]。
type ScoreBreakdown struct {
	Composite float64 `json:"composite"`
	Coherence float64 `json:"coherence"`
	Safety    float64 `json:"safety"`
}

// Result 一次仲裁的完整结论。
// 不变式：Decision == DecisionRefinementNeeded 当且仅当
// Divergence > DivergenceThreshold；Selected 恒为 composite 较高的候选，
// 与 Decision 无关。
type Result struct {
	Selected   AgentOutput               `json:"selected"`
	SelectedID string                    `json:"selected_id"`
	Divergence float64                   `json:"divergence"`
	Scores     map[string]ScoreBreakdown `json:"scores"`
	Decision   Decision                  `json:"decision"`
	// Degraded 表示嵌入获取失败、divergence 被强制置为 1.0。
	// 这不是错误：流水线继续执行，但调用方必须能区分
	// 「真的分歧很大」与「嵌入不可用」。
	Degraded bool `json:"degraded"`
}

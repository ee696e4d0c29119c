package orchestrator

import (
	"strings"

	"arbiter/internal/arbitration"
)

// Stage 流水线阶段。线性状态机：
// START → STRATEGY → CRITIQUE → SYNTHESIS → ARBITRATE → (VERIFY) → DONE。
// 用显式枚举而非嵌套调用表达，保证取消/超时在所有阶段的传播方式一致。
type Stage int

const (
	StageStrategy Stage = iota
	StageCritique
	StageSynthesis
	StageArbitrate
	StageVerify
)

func (s Stage) String() string {
	switch s {
	case StageStrategy:
		return "strategy"
	case StageCritique:
		return "critique"
	case StageSynthesis:
		return "synthesis"
	case StageArbitrate:
		return "arbitrate"
	case StageVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Role 返回该阶段产出所属的 Agent 角色；ARBITRATE 无角色。
func (s Stage) Role() arbitration.Role {
	switch s {
	case StageStrategy:
		return arbitration.RoleStrategist
	case StageCritique:
		return arbitration.RoleCritic
	case StageSynthesis:
		return arbitration.RoleSynthesizer
	case StageVerify:
		return arbitration.RoleVerifier
	default:
		return ""
	}
}

// 各阶段的内置 system 指令；可通过配置整体替换。
const (
	defaultStrategistInstruction  = "You are the strategist. Break down the problem and outline an approach before solving it."
	defaultCriticInstruction      = "You are the critic. Identify flaws, edge cases, and risks in the strategy above."
	defaultSynthesizerInstruction = "You are the synthesizer. Merge the strategy and critique into one coherent solution."
	defaultVerifierInstruction    = "You are the verifier. Validate the selected solution for correctness, safety, and consistency."
)

// Instructions 每个生成阶段使用的 system 指令。
type Instructions struct {
	Strategist  string
	Critic      string
	Synthesizer string
	Verifier    string
}

// DefaultInstructions 返回内置指令集。
func DefaultInstructions() Instructions {
	return Instructions{
		Strategist:  defaultStrategistInstruction,
		Critic:      defaultCriticInstruction,
		Synthesizer: defaultSynthesizerInstruction,
		Verifier:    defaultVerifierInstruction,
	}
}

// merge 用非空覆盖项替换内置指令。
func (i Instructions) merge(override Instructions) Instructions {
	out := i
	if s := strings.TrimSpace(override.Strategist); s != "" {
		out.Strategist = s
	}
	if s := strings.TrimSpace(override.Critic); s != "" {
		out.Critic = s
	}
	if s := strings.TrimSpace(override.Synthesizer); s != "" {
		out.Synthesizer = s
	}
	if s := strings.TrimSpace(override.Verifier); s != "" {
		out.Verifier = s
	}
	return out
}

func (i Instructions) forStage(stage Stage) string {
	switch stage {
	case StageStrategy:
		return i.Strategist
	case StageCritique:
		return i.Critic
	case StageSynthesis:
		return i.Synthesizer
	case StageVerify:
		return i.Verifier
	default:
		return ""
	}
}

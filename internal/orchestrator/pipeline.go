package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/arbitration"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	textutil "arbiter/internal/pkg/text"

	"github.com/google/uuid"
)

// Config 编排器配置；构造后不可变。
type Config struct {
	// ConfidenceThreshold 胜出 composite 低于该值时追加 VERIFY 阶段。
	ConfidenceThreshold float64
	// Instructions 为空的字段使用内置指令。
	Instructions Instructions
	// StageProviders 每个生成阶段首选的模型 ID；缺省用第一个可用模型。
	StageProviders map[Stage]string
}

// Orchestrator 固定角色的多 Agent 流水线控制器。
// 单次 Orchestrate 调用内部持有全部状态，不同查询的并发调用完全独立。
type Orchestrator struct {
	cfg       Config
	providers []provider.GenerationProvider
	engine    *arbitration.Engine
	observer  Observer
}

func New(cfg Config, providers []provider.GenerationProvider, engine *arbitration.Engine) *Orchestrator {
	// 0 是合法取值（永不触发复核），只修正越界值。
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.7
	}
	cfg.Instructions = DefaultInstructions().merge(cfg.Instructions)
	return &Orchestrator{cfg: cfg, providers: providers, engine: engine}
}

// SetObserver 注册运行记录观察者（通常为 runlog 存储）。
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Orchestrate 执行一次完整流水线：3 次（或触发复核时 4 次）生成调用、
// 2 次嵌入调用。任一阶段被取消或生成失败即中止整个调用，不返回部分 provenance。
// 复核阈值取构造时配置的默认值。
func (o *Orchestrator) Orchestrate(ctx context.Context, query string) (Result, error) {
	return o.OrchestrateWithThreshold(ctx, query, o.cfg.ConfidenceThreshold)
}

// OrchestrateWithThreshold 以调用方指定的置信阈值执行一次流水线，
// 覆盖配置中的默认阈值。阈值越界返回 ErrInvalidInput。
func (o *Orchestrator) OrchestrateWithThreshold(ctx context.Context, query string, confidenceThreshold float64) (Result, error) {
	if confidenceThreshold < 0 || confidenceThreshold > 1 {
		return Result{}, fmt.Errorf("%w: confidence threshold %.3f 超出 [0,1]", arbitration.ErrInvalidInput, confidenceThreshold)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: query cannot be empty", arbitration.ErrInvalidInput)
	}
	if o.engine == nil {
		return Result{}, fmt.Errorf("%w: arbitration engine not configured", arbitration.ErrInvalidInput)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	traceID := uuid.NewString()
	logger.Infof("开始编排 trace=%s query=%s", traceID, textutil.Truncate(query, 80))

	history := []provider.Message{{Role: provider.RoleUser, Content: query}}
	traces := make([]StageTrace, 0, 4)

	strategy, trace, err := o.runStage(ctx, StageStrategy, history)
	if err != nil {
		return Result{}, err
	}
	traces = append(traces, trace)
	history = append(history, stageMessage(StageStrategy, strategy.Text))

	critique, trace, err := o.runStage(ctx, StageCritique, history)
	if err != nil {
		return Result{}, err
	}
	traces = append(traces, trace)
	history = append(history, stageMessage(StageCritique, critique.Text))

	// Synthesis 读取 Strategy+Critique，但其输出不进入仲裁前的历史：
	// Critique 的角色是对抗性的，不作为仲裁候选。
	synthesis, trace, err := o.runStage(ctx, StageSynthesis, history)
	if err != nil {
		return Result{}, err
	}
	traces = append(traces, trace)

	arbRes, err := o.engine.Arbitrate(ctx, strategy, synthesis)
	if err != nil {
		return Result{}, fmt.Errorf("仲裁失败: %w", err)
	}
	winning := arbRes.Scores[arbRes.SelectedID].Composite
	logger.Infof("仲裁完成 trace=%s decision=%s divergence=%.3f selected=%s composite=%.3f degraded=%v",
		traceID, arbRes.Decision, arbRes.Divergence, arbRes.SelectedID, winning, arbRes.Degraded)

	finalOutput := arbRes.Selected.Text
	verified := false
	if winning < confidenceThreshold {
		history = append(history, stageMessage(StageSynthesis, synthesis.Text))
		history = append(history, provider.Message{
			Role:    provider.RoleAssistant,
			Content: fmt.Sprintf("Arbitration selected (%s):\n%s", arbRes.SelectedID, arbRes.Selected.Text),
		})
		verifyOut, vtrace, verr := o.runStage(ctx, StageVerify, history)
		if verr != nil {
			return Result{}, verr
		}
		traces = append(traces, vtrace)
		finalOutput = verifyOut.Text
		verified = true
	}

	res := Result{
		TraceID:     traceID,
		Query:       query,
		FinalOutput: finalOutput,
		Provenance: Provenance{
			Stages:              traces,
			ArbitrationDecision: arbRes.Decision,
			Divergence:          arbRes.Divergence,
			Scores:              arbRes.Scores,
			WinningComposite:    winning,
			SelectedCandidate:   arbRes.SelectedID,
			Degraded:            arbRes.Degraded,
			Verified:            verified,
		},
	}
	if o.observer != nil {
		o.observer.OnRunCompleted(ctx, res)
	}
	return res, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, history []provider.Message) (arbitration.AgentOutput, StageTrace, error) {
	p := o.findStageProvider(stage)
	if p == nil {
		return arbitration.AgentOutput{}, StageTrace{}, fmt.Errorf("%w: %s 阶段无可用模型", provider.ErrUnavailable, stage)
	}
	instr := o.cfg.Instructions.forStage(stage)
	msgs := make([]provider.Message, 0, len(history)+1)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: instr})
	msgs = append(msgs, history...)

	logger.LogLLMRequest(p.ID(), stage.String(), instr, renderHistory(history), "")
	start := time.Now()
	gen, err := p.Generate(ctx, msgs)
	elapsed := time.Since(start)
	logger.LogLLMResponse(p.ID(), stage.String(), gen.Text)
	if err != nil {
		logger.Warnf("%s 阶段调用失败 provider=%s elapsed=%s err=%v", stage, p.ID(), elapsed.Truncate(time.Millisecond), err)
		return arbitration.AgentOutput{}, StageTrace{}, fmt.Errorf("%s 阶段生成失败: %w", stage, err)
	}
	text := strings.TrimSpace(gen.Text)
	if text == "" {
		logger.Warnf("%s 阶段返回空文本 provider=%s elapsed=%s", stage, p.ID(), elapsed.Truncate(time.Millisecond))
		return arbitration.AgentOutput{}, StageTrace{}, fmt.Errorf("%w: %s 阶段返回空文本", provider.ErrUnavailable, stage)
	}
	out := arbitration.AgentOutput{
		Text:        text,
		Role:        stage.Role(),
		SafetyScore: gen.SafetyScore,
		SafetyKnown: gen.SafetyKnown,
	}
	trace := StageTrace{
		Stage:       stage.String(),
		Role:        string(stage.Role()),
		ProviderID:  p.ID(),
		Preview:     textutil.Preview(text, PreviewLimit),
		SafetyKnown: gen.SafetyKnown,
		ElapsedMS:   elapsed.Milliseconds(),
	}
	return out, trace, nil
}

func (o *Orchestrator) findStageProvider(stage Stage) provider.GenerationProvider {
	if len(o.providers) == 0 {
		return nil
	}
	preferred := strings.TrimSpace(o.cfg.StageProviders[stage])
	if preferred != "" {
		for _, p := range o.providers {
			if p != nil && p.Enabled() && strings.EqualFold(p.ID(), preferred) {
				return p
			}
		}
		return nil
	}
	for _, p := range o.providers {
		if p != nil && p.Enabled() {
			return p
		}
	}
	return nil
}

// stageMessage 把阶段产出追加为带角色前缀的 assistant 消息，
// 下游阶段据此区分历史中各段内容的来源。
func stageMessage(stage Stage, content string) provider.Message {
	return provider.Message{
		Role:    provider.RoleAssistant,
		Content: fmt.Sprintf("[%s]\n%s", stage.Role(), content),
	}
}

func renderHistory(history []provider.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

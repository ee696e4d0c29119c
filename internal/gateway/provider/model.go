package provider

import (
	"context"
	"errors"
)

// ErrUnavailable 表示生成/嵌入后端不可达、超时或拒绝请求。
// 调用方用 errors.Is 区分后端故障与输入错误。
var ErrUnavailable = errors.New("provider unavailable")

// Message 角色标注的消息，按顺序构成一次生成请求的上下文。
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Generation 一次生成调用的结果。
// SafetyKnown=false 表示后端未返回安全评分；评分缺省按 1.0 参与打分，
// 但「未知」必须透传给上层并出现在 provenance 中。
type Generation struct {
	Text        string
	SafetyScore float64
	SafetyKnown bool
}

type GenerationProvider interface {
	ID() string
	Enabled() bool

	Generate(ctx context.Context, messages []Message) (Generation, error)
}

// EmbeddingProvider 将文本映射为定长向量；维度在进程生命周期内固定。
// 失败必须显式返回 error，不允许以零向量充当成功结果。
type EmbeddingProvider interface {
	ID() string

	Embed(ctx context.Context, text string) ([]float64, error)
}

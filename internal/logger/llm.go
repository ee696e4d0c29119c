package logger

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
)

// 中文说明：
// 独立的 LLM 流量日志：记录每个编排阶段发给生成/嵌入后端的提示词与原始返回，
// 与业务日志分开落盘，便于事后排查某次仲裁为什么选了某个候选。

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(kind, provider, stage string, sections []llmSection) {
	llmMu.Lock()
	logger := llmLog
	llmMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if provider != "" {
		b.WriteString("[")
		b.WriteString(provider)
		b.WriteString("]")
	}
	if stage != "" {
		b.WriteString("[")
		b.WriteString(stage)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		body := sec.Body
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}

// LogLLMRequest 记录一次生成请求的 system/user 提示词；payload 仅在 dump 开启时追加。
func LogLLMRequest(provider, stage, systemPrompt, userPrompt, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	if llmDumpPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	logLLM("request", provider, stage, sections)
}

// LogLLMPayload 在 dump 开启时记录完整请求体。
func LogLLMPayload(provider, payload string) {
	llmMu.Lock()
	enabled := llmDumpPayload
	llmMu.Unlock()
	if !enabled {
		return
	}
	text := strings.TrimSpace(payload)
	if text == "" {
		return
	}
	logLLM("payload", provider, "request", []llmSection{{Title: "PAYLOAD", Body: text}})
}

// LogLLMResponse 记录模型原始返回。
func LogLLMResponse(provider, stage, raw string) {
	logLLM("response", provider, stage, []llmSection{{Title: "RAW", Body: raw}})
}

// LogEmbedding 记录一次嵌入调用的入参摘要与维度，不落盘完整向量。
func LogEmbedding(provider, stage, input string, dim int) {
	if dim < 0 {
		dim = 0
	}
	logLLM("embedding", provider, stage, []llmSection{
		{Title: "INPUT", Body: input},
		{Title: "DIM", Body: strconv.Itoa(dim)},
	})
}

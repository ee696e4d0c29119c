package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbiter/internal/logger"
	"arbiter/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// 中文说明：
// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
// ExpectJSON 的后端以 {"text": ..., "safety_score": ...} 包裹返回，
// 用 gjson 做容错提取；普通后端整段 content 即为文本，安全评分视为未知。

type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 简易重试（用于 429/5xx）：若为 0 则默认重试 2 次
	MaxRetries   int
	ExtraHeaders map[string]string
	ExpectJSON   bool
}

func (c *OpenAIChatClient) CallWithMessages(ctx context.Context, messages []Message) (Generation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// 不回写 c.Timeout，client 可能被多个编排并发共享。
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := normalizeChatURL(c.BaseURL)

	msgs := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = RoleUser
		}
		msgs = append(msgs, map[string]string{"role": role, "content": m.Content})
	}
	body := map[string]any{"model": c.Model, "messages": msgs, "temperature": 0.5}
	b, _ := json.Marshal(body)

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt == 0 {
			logger.Debugf("[AI] 请求: POST %s, headers=%v", url, c.maskedHeaders())
			logger.LogLLMPayload(c.Model, string(b))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return Generation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			if ctx.Err() != nil {
				return Generation{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
			break
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return Generation{}, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, derr)
			}
			if len(r.Choices) == 0 {
				return Generation{}, fmt.Errorf("%w: empty choices", ErrUnavailable)
			}
			return c.parseContent(r.Choices[0].Message.Content), nil
		}
		// 非 2xx：尝试解析错误消息
		var eresp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("%w: status=%d: %s", ErrUnavailable, resp.StatusCode, msg)
		// 对 429/5xx 进行有限重试（带 Retry-After 支持）
		if retryableStatus(resp.StatusCode) && attempt < maxRetries {
			wait := retryWait(resp.Header.Get("Retry-After"), attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Generation{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
			continue
		}
		break
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return Generation{}, lastErr
}

// parseContent 拆出文本与安全评分；未返回评分时 SafetyKnown=false。
// 模型经常把 JSON 包在 ```json 代码块里，先做容错提取再解析。
func (c *OpenAIChatClient) parseContent(content string) Generation {
	gen := Generation{Text: content, SafetyScore: 1.0}
	if !c.ExpectJSON {
		return gen
	}
	trimmed := strings.TrimSpace(content)
	if extracted, ok := jsonutil.ExtractJSON(trimmed); ok {
		trimmed = extracted
	}
	if !gjson.Valid(trimmed) {
		return gen
	}
	parsed := gjson.Parse(trimmed)
	if text := parsed.Get("text"); text.Exists() {
		gen.Text = text.String()
	}
	if score := parsed.Get("safety_score"); score.Exists() {
		v := score.Float()
		if v >= 0 && v <= 1 {
			gen.SafetyScore = v
			gen.SafetyKnown = true
		}
	}
	return gen
}

func (c *OpenAIChatClient) maskedHeaders() map[string]string {
	hlog := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		hlog["Authorization"] = "Bearer ****" + tail4(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = "****" + tail4(v)
		}
		hlog[k] = v
	}
	return hlog
}

func tail4(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return s
}

// normalizeChatURL 规范化 BaseURL，避免用户把完整的 /chat/completions 也写进配置导致重复路径。
func normalizeChatURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryWait(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// 基本指数退避：0.8s, 1.6s, 3.2s ...
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// OpenAIGenerationProvider 将聊天客户端适配为 GenerationProvider。
type OpenAIGenerationProvider struct {
	id      string
	enabled bool
	client  interface {
		CallWithMessages(ctx context.Context, messages []Message) (Generation, error)
	}
}

func NewOpenAIGenerationProvider(id string, enabled bool, client interface {
	CallWithMessages(context.Context, []Message) (Generation, error)
}) *OpenAIGenerationProvider {
	return &OpenAIGenerationProvider{id: id, enabled: enabled, client: client}
}

func (p *OpenAIGenerationProvider) ID() string    { return p.id }
func (p *OpenAIGenerationProvider) Enabled() bool { return p.enabled }

func (p *OpenAIGenerationProvider) Generate(ctx context.Context, messages []Message) (Generation, error) {
	return p.client.CallWithMessages(ctx, messages)
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arbiter/internal/logger"
)

// 中文说明：
// OpenAIEmbeddingClient：兼容 OpenAI 的嵌入接口（/v1/embeddings）。
// 失败必须显式报错；零向量不是合法的成功返回（上层会把它当成最大分歧）。

type OpenAIEmbeddingClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ExtraHeaders map[string]string
}

func (c *OpenAIEmbeddingClient) ID() string {
	if strings.TrimSpace(c.Model) != "" {
		return c.Model
	}
	return "embedding"
}

func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding input cannot be empty")
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	url := normalizeEmbeddingURL(c.BaseURL)
	body := map[string]any{"model": c.Model, "input": text}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	for k, v := range c.ExtraHeaders {
		req.Header.Set(k, v)
	}

	httpc := &http.Client{Timeout: timeout}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: status=%d: %s", ErrUnavailable, resp.StatusCode, msg)
	}
	var r struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(r.Data) == 0 || len(r.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrUnavailable)
	}
	vec := r.Data[0].Embedding
	if isZeroVector(vec) {
		return nil, fmt.Errorf("%w: backend returned zero vector", ErrUnavailable)
	}
	logger.LogEmbedding(c.ID(), "arbitrate", text, len(vec))
	return vec, nil
}

func isZeroVector(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func normalizeEmbeddingURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/embeddings")
	return url + "/embeddings"
}

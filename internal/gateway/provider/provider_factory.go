package provider

import (
	"fmt"
	"strings"
	"time"

	"arbiter/internal/logger"
)

type ModelCfg struct {
	ID, APIURL, APIKey, Model string
	Enabled                   bool
	Headers                   map[string]string
	ExpectJSON                bool
}

func BuildGenerationProviders(models []ModelCfg, timeout time.Duration) []GenerationProvider {
	out := make([]GenerationProvider, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			model := strings.TrimSpace(m.Model)
			if model != "" {
				id = fmt.Sprintf("openai:%s", model)
			} else {
				id = "openai"
			}
			logger.Warnf("未配置 ai.models.id，已为 %q 生成 ID: %s", m.Model, id)
		}
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			ExtraHeaders: m.Headers,
			ExpectJSON:   m.ExpectJSON,
		}
		if timeout > 0 {
			client.Timeout = timeout
		}
		p := NewOpenAIGenerationProvider(id, true, client)
		out = append(out, WithBreaker(p, 5, 30*time.Second))
	}
	return out
}

type EmbeddingCfg struct {
	APIURL, APIKey, Model string
	Headers               map[string]string
}

func BuildEmbeddingProvider(cfg EmbeddingCfg, timeout time.Duration) EmbeddingProvider {
	client := &OpenAIEmbeddingClient{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		ExtraHeaders: cfg.Headers,
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

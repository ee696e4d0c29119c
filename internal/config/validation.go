package config

import (
	"fmt"
	"math"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Arbitration.validate(); err != nil {
		return err
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AIConfig) validate() error {
	models, err := a.ResolveModelConfigs()
	if err != nil {
		return err
	}
	enabled := 0
	for _, m := range models {
		if strings.TrimSpace(m.ID) == "" && strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("ai.models contains entry without id or model")
		}
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("ai.models contains entry without model (id=%s)", m.ID)
		}
		if strings.TrimSpace(m.APIURL) == "" {
			return fmt.Errorf("ai.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		if m.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("ai.models requires at least one enabled model")
	}
	if strings.TrimSpace(a.Embedding.Model) == "" {
		return fmt.Errorf("ai.embedding.model is required")
	}
	if strings.TrimSpace(a.Embedding.APIURL) == "" {
		return fmt.Errorf("ai.embedding.api_url is required")
	}
	return nil
}

func (a *ArbitrationConfig) validate() error {
	if a.DivergenceThreshold < 0 || a.DivergenceThreshold > 1 {
		return fmt.Errorf("arbitration.divergence_threshold must be in [0,1]")
	}
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"semantic_weight", a.SemanticWeight},
		{"safety_weight", a.SafetyWeight},
		{"coherence_weight", a.CoherenceWeight},
	} {
		if w.value < 0 || w.value > 1 {
			return fmt.Errorf("arbitration.%s must be in [0,1]", w.name)
		}
	}
	// 约定权重和为 1.0，保证 composite 落在 [0,1]；仅提示级别的硬校验。
	sum := a.SemanticWeight + a.SafetyWeight + a.CoherenceWeight
	if sum > 1+1e-9 {
		return fmt.Errorf("arbitration weights sum %.3f exceeds 1.0", sum)
	}
	if math.IsNaN(sum) {
		return fmt.Errorf("arbitration weights must be numbers")
	}
	return nil
}

func (p *PipelineConfig) validate() error {
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in [0,1]")
	}
	return nil
}

package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"

	defaultAITimeout        = 120
	defaultEmbeddingTimeout = 30

	// 仲裁默认：divergence > 0.3 触发 consensus_refinement_needed，
	// 权重 0.4/0.4/0.2（语义/安全/连贯），和为 1.0。
	defaultDivergenceThreshold = 0.3
	defaultSemanticWeight      = 0.4
	defaultSafetyWeight        = 0.4
	defaultCoherenceWeight     = 0.2

	// 胜出 composite 低于该阈值时追加 Verifier 阶段。
	defaultConfidenceThreshold = 0.7
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Arbitration.applyDefaults(keys)
	c.Pipeline.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	if a.ProviderPresets == nil {
		a.ProviderPresets = make(map[string]ModelPreset)
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
		fieldDefault{
			key:   "ai.embedding.timeout_seconds",
			need:  func() bool { return a.Embedding.TimeoutSeconds <= 0 },
			apply: func() { a.Embedding.TimeoutSeconds = defaultEmbeddingTimeout },
		},
	)
}

func (a *ArbitrationConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "arbitration.divergence_threshold",
			need:  func() bool { return a.DivergenceThreshold <= 0 || a.DivergenceThreshold > 1 },
			apply: func() { a.DivergenceThreshold = defaultDivergenceThreshold },
		},
		fieldDefault{
			key:   "arbitration.semantic_weight",
			need:  func() bool { return a.SemanticWeight <= 0 },
			apply: func() { a.SemanticWeight = defaultSemanticWeight },
		},
		fieldDefault{
			key:   "arbitration.safety_weight",
			need:  func() bool { return a.SafetyWeight <= 0 },
			apply: func() { a.SafetyWeight = defaultSafetyWeight },
		},
		fieldDefault{
			key:   "arbitration.coherence_weight",
			need:  func() bool { return a.CoherenceWeight <= 0 },
			apply: func() { a.CoherenceWeight = defaultCoherenceWeight },
		},
	)
}

func (p *PipelineConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "pipeline.confidence_threshold",
			need:  func() bool { return p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold > 1 },
			apply: func() { p.ConfidenceThreshold = defaultConfidenceThreshold },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

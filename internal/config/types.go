package config

import "strings"

// Config 是 Arbiter 的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	AI          AIConfig          `toml:"ai"`
	Arbitration ArbitrationConfig `toml:"arbitration"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Store       StoreConfig       `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// AIConfig 包含生成/嵌入后端的连接配置。
type AIConfig struct {
	TimeoutSeconds  int                    `toml:"timeout_seconds"`
	ProviderPresets map[string]ModelPreset `toml:"provider_presets"`
	Models          []AIModelConfig        `toml:"models"`
	Embedding       EmbeddingConfig        `toml:"embedding"`
}

// ModelPreset 描述可复用的 API 连接配置。
type ModelPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
	// ExpectJSON 表示该后端以 JSON 包裹文本与安全评分返回。
	ExpectJSON bool `toml:"expect_json"`
}

// AIModelConfig 代表一个可被编排阶段引用的生成模型条目。
type AIModelConfig struct {
	ID      string            `toml:"id"`
	Preset  string            `toml:"preset"`
	Enabled bool              `toml:"enabled"`
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Model   string            `toml:"model"`
	Headers map[string]string `toml:"headers"`
	// ExpectJSON 使用指针以区分「显式 false」与「沿用预设值」。
	ExpectJSON *bool `toml:"expect_json"`
}

// ResolvedModelConfig 是合并预设后的最终模型配置。
type ResolvedModelConfig struct {
	ID         string
	Enabled    bool
	APIURL     string
	APIKey     string
	Model      string
	Headers    map[string]string
	ExpectJSON bool
}

// EmbeddingConfig 描述嵌入后端；维度在进程生命周期内固定，由后端保证。
type EmbeddingConfig struct {
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Headers        map[string]string `toml:"headers"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// ArbitrationConfig 控制仲裁引擎的阈值与权重。
// 三项权重按约定和为 1.0，保证 composite 落在 [0,1]。
type ArbitrationConfig struct {
	DivergenceThreshold float64 `toml:"divergence_threshold"`
	SemanticWeight      float64 `toml:"semantic_weight"`
	SafetyWeight        float64 `toml:"safety_weight"`
	CoherenceWeight     float64 `toml:"coherence_weight"`
}

// PipelineConfig 控制多 Agent 编排：各阶段使用的模型与触发复核的置信阈值。
type PipelineConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	StrategistProvider  string  `toml:"strategist_provider"`
	CriticProvider      string  `toml:"critic_provider"`
	SynthesizerProvider string  `toml:"synthesizer_provider"`
	VerifierProvider    string  `toml:"verifier_provider"`
	// 各阶段 system 指令可整体替换；留空使用内置指令。
	StrategistInstruction  string `toml:"strategist_instruction"`
	CriticInstruction      string `toml:"critic_instruction"`
	SynthesizerInstruction string `toml:"synthesizer_instruction"`
	VerifierInstruction    string `toml:"verifier_instruction"`
}

type StoreConfig struct {
	RunLogPath string `toml:"run_log_path"`
}

// ResolveModelConfigs 合并预设并返回最终模型配置；校验阶段保证其不出错。
func (a AIConfig) ResolveModelConfigs() ([]ResolvedModelConfig, error) {
	out := make([]ResolvedModelConfig, 0, len(a.Models))
	for _, m := range a.Models {
		resolved := ResolvedModelConfig{
			ID:      strings.TrimSpace(m.ID),
			Enabled: m.Enabled,
			APIURL:  strings.TrimSpace(m.APIURL),
			APIKey:  strings.TrimSpace(m.APIKey),
			Model:   strings.TrimSpace(m.Model),
			Headers: m.Headers,
		}
		if preset, ok := a.ProviderPresets[strings.TrimSpace(m.Preset)]; ok {
			if resolved.APIURL == "" {
				resolved.APIURL = strings.TrimSpace(preset.APIURL)
			}
			if resolved.APIKey == "" {
				resolved.APIKey = strings.TrimSpace(preset.APIKey)
			}
			if len(resolved.Headers) == 0 {
				resolved.Headers = preset.Headers
			}
			resolved.ExpectJSON = preset.ExpectJSON
		}
		if m.ExpectJSON != nil {
			resolved.ExpectJSON = *m.ExpectJSON
		}
		out = append(out, resolved)
	}
	return out, nil
}

// MustResolveModelConfigs 在配置已通过校验的前提下使用。
func (a AIConfig) MustResolveModelConfigs() []ResolvedModelConfig {
	out, err := a.ResolveModelConfigs()
	if err != nil {
		return nil
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

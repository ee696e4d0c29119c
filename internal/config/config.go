package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 path 指向的 YAML 配置并解码为 Config。
// 文件可通过顶层 include 列表引用其它文件：被引用文件先生效，
// 声明 include 的文件覆盖它们的同名键。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	settings, err := loadSettings(abs, nil)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, fmt.Errorf("merging config failed: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	markSettingKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadSettings 读取单个文件，先递归合并其 include 列表再叠加自身键。
// visiting 记录当前解析链，用于检测 include 环。
func loadSettings(path string, visiting []string) (map[string]any, error) {
	path = filepath.Clean(path)
	for _, p := range visiting {
		if p == path {
			return nil, fmt.Errorf("include cycle detected: %s", path)
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	own := v.AllSettings()
	includes, err := includeList(own["include"])
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	delete(own, "include")
	if len(includes) == 0 {
		return own, nil
	}
	merged := make(map[string]any)
	visiting = append(visiting, path)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := loadSettings(inc, visiting)
		if err != nil {
			return nil, err
		}
		overlaySettings(merged, sub)
	}
	overlaySettings(merged, own)
	return merged, nil
}

func includeList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// overlaySettings 将 src 覆盖进 dst，同名子表递归合并而非整体替换。
func overlaySettings(dst, src map[string]any) {
	for k, val := range src {
		if sm, ok := val.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				overlaySettings(dm, sm)
				continue
			}
		}
		dst[k] = val
	}
}

// markSettingKeys 记录配置文件里显式出现过的扁平键，
// 供默认值填充时区分"未写"与"写了零值"。
func markSettingKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			markSettingKeys(key, child, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			markSettingKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}

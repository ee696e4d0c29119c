package config

import (
	"fmt"
	"strings"
	"sync"

	"arbiter/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ThresholdSnapshot 是支持热更新的阈值子集。
// 引擎/编排器实例本身不可变，热更新通过重建实例完成，这里只负责探测与通知。
type ThresholdSnapshot struct {
	Arbitration ArbitrationConfig
	Pipeline    PipelineConfig
}

// ThresholdListener 在阈值配置变更时被调用。
type ThresholdListener func(ThresholdSnapshot)

// ThresholdWatcher 监听主配置文件中 arbitration/pipeline 段的变化。
type ThresholdWatcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  ThresholdSnapshot
	listeners []ThresholdListener
}

// NewThresholdWatcher 读取配置文件并开始监听 FS 事件。
func NewThresholdWatcher(path string) (*ThresholdWatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("threshold watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &ThresholdWatcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("阈值热更新失败 (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

func (w *ThresholdWatcher) reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return err
	}
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = ThresholdSnapshot{Arbitration: cfg.Arbitration, Pipeline: cfg.Pipeline}
	w.mu.Unlock()
	return nil
}

// Snapshot 返回当前阈值快照。
func (w *ThresholdWatcher) Snapshot() ThresholdSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe 注册监听器，并立即收到一次当前快照。
func (w *ThresholdWatcher) Subscribe(fn ThresholdListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	snap := w.snapshot
	w.mu.Unlock()
	go safeNotify(fn, snap)
}

func (w *ThresholdWatcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]ThresholdListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go safeNotify(fn, snap)
	}
}

func safeNotify(fn ThresholdListener, snap ThresholdSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("threshold listener panic: %v", r)
		}
	}()
	fn(snap)
}

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/arbitration"
	arbcfg "arbiter/internal/config"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/orchestrator"
	"arbiter/internal/store/runlog"
	arbiterhttp "arbiter/internal/transport/http"
)

// AppBuilder 按配置组装依赖链：模型后端→仲裁引擎→编排器→运行日志→HTTP。
type AppBuilder struct {
	cfg *arbcfg.Config

	providersFn  func(arbcfg.AIConfig) ([]provider.GenerationProvider, provider.EmbeddingProvider, error)
	runStoreFn   func(arbcfg.StoreConfig) (*runlog.Store, error)
	httpServerFn func(arbcfg.AppConfig, arbiterhttp.OrchestrateService, arbiterhttp.RunReader) (*arbiterhttp.Server, error)
	watcherFn    func(string) (*arbcfg.ThresholdWatcher, error)

	configPath string
}

type AppBuilderOption func(*AppBuilder)

// WithConfigPath 启用阈值热更新，监听给定配置文件。
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.configPath = strings.TrimSpace(path) }
}

func NewAppBuilder(cfg *arbcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		providersFn:  buildProviders,
		runStoreFn:   buildRunStore,
		httpServerFn: buildHTTPServer,
		watcherFn:    arbcfg.NewThresholdWatcher,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	generators, embedder, err := b.providersFn(cfg.AI)
	if err != nil {
		return nil, err
	}
	if len(generators) == 0 {
		return nil, fmt.Errorf("没有可用的生成模型，请检查 ai.models 配置")
	}
	logger.Infof("✓ 已加载 %d 个生成模型", len(generators))

	var runStore *runlog.Store
	if strings.TrimSpace(cfg.Store.RunLogPath) != "" {
		runStore, err = b.runStoreFn(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("初始化运行日志失败: %w", err)
		}
		logger.Infof("✓ 运行日志: %s", cfg.Store.RunLogPath)
	}

	holder := newServiceHolder()
	holder.rebuild(cfg.Arbitration, cfg.Pipeline, generators, embedder, runStore)

	var runs arbiterhttp.RunReader
	if runStore != nil {
		runs = runStore
	}
	httpServer, err := b.httpServerFn(cfg.App, holder, runs)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:        cfg,
		holder:     holder,
		httpServer: httpServer,
		runStore:   runStore,
		generators: generators,
		embedder:   embedder,
	}

	if b.configPath != "" {
		watcher, err := b.watcherFn(b.configPath)
		if err != nil {
			logger.Warnf("阈值热更新不可用: %v", err)
		} else {
			watcher.Subscribe(func(snap arbcfg.ThresholdSnapshot) {
				holder.rebuild(snap.Arbitration, snap.Pipeline, generators, embedder, runStore)
				logger.Infof("阈值已热更新 divergence=%.2f confidence=%.2f",
					snap.Arbitration.DivergenceThreshold, snap.Pipeline.ConfidenceThreshold)
			})
			app.watcher = watcher
		}
	}
	return app, nil
}

func buildProviders(cfg arbcfg.AIConfig) ([]provider.GenerationProvider, provider.EmbeddingProvider, error) {
	resolved, err := cfg.ResolveModelConfigs()
	if err != nil {
		return nil, nil, err
	}
	models := make([]provider.ModelCfg, 0, len(resolved))
	for _, m := range resolved {
		models = append(models, provider.ModelCfg{
			ID:         m.ID,
			APIURL:     m.APIURL,
			APIKey:     m.APIKey,
			Model:      m.Model,
			Enabled:    m.Enabled,
			Headers:    m.Headers,
			ExpectJSON: m.ExpectJSON,
		})
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	generators := provider.BuildGenerationProviders(models, timeout)

	var embedder provider.EmbeddingProvider
	if strings.TrimSpace(cfg.Embedding.APIURL) != "" {
		embTimeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
		embedder = provider.BuildEmbeddingProvider(provider.EmbeddingCfg{
			APIURL:  cfg.Embedding.APIURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			Headers: cfg.Embedding.Headers,
		}, embTimeout)
	}
	return generators, embedder, nil
}

func buildRunStore(cfg arbcfg.StoreConfig) (*runlog.Store, error) {
	return runlog.NewStore(cfg.RunLogPath)
}

func buildHTTPServer(cfg arbcfg.AppConfig, svc arbiterhttp.OrchestrateService, runs arbiterhttp.RunReader) (*arbiterhttp.Server, error) {
	return arbiterhttp.NewServer(arbiterhttp.ServerConfig{
		Addr:    cfg.HTTPAddr,
		Service: svc,
		Runs:    runs,
	})
}

// newOrchestrator 把配置映射为编排器实例。
func newOrchestrator(
	arb arbcfg.ArbitrationConfig,
	pipe arbcfg.PipelineConfig,
	generators []provider.GenerationProvider,
	embedder provider.EmbeddingProvider,
	runStore *runlog.Store,
) *orchestrator.Orchestrator {
	engine := arbitration.NewEngine(arbitration.Config{
		DivergenceThreshold: arb.DivergenceThreshold,
		SemanticWeight:      arb.SemanticWeight,
		SafetyWeight:        arb.SafetyWeight,
		CoherenceWeight:     arb.CoherenceWeight,
	}, embedder)
	o := orchestrator.New(orchestrator.Config{
		ConfidenceThreshold: pipe.ConfidenceThreshold,
		Instructions: orchestrator.Instructions{
			Strategist:  pipe.StrategistInstruction,
			Critic:      pipe.CriticInstruction,
			Synthesizer: pipe.SynthesizerInstruction,
			Verifier:    pipe.VerifierInstruction,
		},
		StageProviders: map[orchestrator.Stage]string{
			orchestrator.StageStrategy:  pipe.StrategistProvider,
			orchestrator.StageCritique:  pipe.CriticProvider,
			orchestrator.StageSynthesis: pipe.SynthesizerProvider,
			orchestrator.StageVerify:    pipe.VerifierProvider,
		},
	}, generators, engine)
	if runStore != nil {
		o.SetObserver(runlog.NewRecorder(runStore, 0))
	}
	return o
}

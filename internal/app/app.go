package app

import (
	"context"
	"fmt"
	"sync/atomic"

	arbcfg "arbiter/internal/config"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/orchestrator"
	"arbiter/internal/store/runlog"
	arbiterhttp "arbiter/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg        *arbcfg.Config
	holder     *serviceHolder
	httpServer *arbiterhttp.Server
	runStore   *runlog.Store
	watcher    *arbcfg.ThresholdWatcher
	generators []provider.GenerationProvider
	embedder   provider.EmbeddingProvider
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *arbcfg.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts...)
}

// Run 启动 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.httpServer == nil {
		return fmt.Errorf("http server not initialized")
	}
	logger.Infof("HTTP 服务监听 %s", a.httpServer.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// Orchestrate 执行一次完整流水线，一次性 CLI 模式使用。
func (a *App) Orchestrate(ctx context.Context, query string) (orchestrator.Result, error) {
	if a == nil || a.holder == nil {
		return orchestrator.Result{}, fmt.Errorf("app not initialized")
	}
	return a.holder.Orchestrate(ctx, query)
}

// OrchestrateWithThreshold 以指定置信阈值执行一次流水线。
func (a *App) OrchestrateWithThreshold(ctx context.Context, query string, confidenceThreshold float64) (orchestrator.Result, error) {
	if a == nil || a.holder == nil {
		return orchestrator.Result{}, fmt.Errorf("app not initialized")
	}
	return a.holder.OrchestrateWithThreshold(ctx, query, confidenceThreshold)
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.runStore != nil {
		if err := a.runStore.Close(); err != nil {
			logger.Warnf("关闭运行日志失败: %v", err)
		}
	}
}

// serviceHolder 持有当前编排器实例；阈值热更新通过整体替换完成，
// 进行中的请求继续使用旧实例。
type serviceHolder struct {
	current atomic.Pointer[orchestrator.Orchestrator]
}

func newServiceHolder() *serviceHolder {
	return &serviceHolder{}
}

func (h *serviceHolder) rebuild(
	arb arbcfg.ArbitrationConfig,
	pipe arbcfg.PipelineConfig,
	generators []provider.GenerationProvider,
	embedder provider.EmbeddingProvider,
	runStore *runlog.Store,
) {
	h.current.Store(newOrchestrator(arb, pipe, generators, embedder, runStore))
}

func (h *serviceHolder) Orchestrate(ctx context.Context, query string) (orchestrator.Result, error) {
	o := h.current.Load()
	if o == nil {
		return orchestrator.Result{}, fmt.Errorf("orchestrator not initialized")
	}
	return o.Orchestrate(ctx, query)
}

func (h *serviceHolder) OrchestrateWithThreshold(ctx context.Context, query string, confidenceThreshold float64) (orchestrator.Result, error) {
	o := h.current.Load()
	if o == nil {
		return orchestrator.Result{}, fmt.Errorf("orchestrator not initialized")
	}
	return o.OrchestrateWithThreshold(ctx, query, confidenceThreshold)
}

var _ arbiterhttp.OrchestrateService = (*serviceHolder)(nil)

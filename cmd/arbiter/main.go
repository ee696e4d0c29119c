package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"arbiter/internal/app"
	arbcfg "arbiter/internal/config"
	"arbiter/internal/logger"
	"arbiter/internal/orchestrator"
)

func main() {
	query := flag.String("query", "", "一次性执行单条查询并打印结果（不启动 HTTP 服务）")
	confidence := flag.Float64("confidence", -1, "本次查询的复核置信阈值 [0,1]，缺省使用配置值")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("ARBITER_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := arbcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLLMWriter(nil)
	if cfg.App.LLMDump {
		f, err := setupLLMLogOutput(cfg.App.LLMLog)
		if err != nil {
			log.Fatalf("初始化 LLM 日志失败: %v", err)
		}
		if f != nil {
			defer f.Close()
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableLLMPayloadDump(cfg.App.LLMDump)
	logger.Infof("✓ 配置加载成功（环境=%s，模型数=%d）", cfg.App.Env, len(cfg.AI.Models))

	application, err := app.NewApp(cfg, app.WithConfigPath(cfgPath))
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	if strings.TrimSpace(*query) != "" {
		runOnce(ctx, application, *query, *confidence)
		return
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

// runOnce 执行单条查询后退出，结果以 JSON 打到 stdout。
func runOnce(ctx context.Context, application *app.App, query string, confidence float64) {
	defer application.Close()
	var (
		res orchestrator.Result
		err error
	)
	if confidence >= 0 {
		res, err = application.OrchestrateWithThreshold(ctx, query, confidence)
	} else {
		res, err = application.Orchestrate(ctx, query)
	}
	if err != nil {
		log.Fatalf("编排失败: %v", err)
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatalf("序列化结果失败: %v", err)
	}
	fmt.Println(string(out))
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupLLMLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetLLMWriter(f)
	return f, nil
}

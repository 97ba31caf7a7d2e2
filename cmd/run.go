package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/bridge"
	"github.com/nextlevelbuilder/ensemble/internal/checkpoint"
	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/hitl"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/supervisor"
	"github.com/nextlevelbuilder/ensemble/internal/telemetry"
)

// runSupervisor assembles every component from configuration and drives the
// run loop until interrupted.
func runSupervisor() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// persona, trigger, and action files are resolved relative to the config
	agents, err := personas.LoadAgents(cfg, filepath.Dir(cfgPath))
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	llm := providers.NewOpenAIClient("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Providers.OpenAI.DefaultModel)
	br := bridge.NewClient(cfg.Bridge.BaseURL, time.Duration(cfg.Bridge.TimeoutSeconds)*time.Second, cfg.Bridge.RatePerSecond)
	mem := memory.NewStore(cfg.DataDir, cfg.LogsDir)

	var approvals *hitl.State
	var checkpoints *checkpoint.Store
	if cfg.HITL.Enabled {
		approvals = hitl.NewState(cfg.HITL.StateDir)
		checkpoints, err = checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("open checkpoints: %w", err)
		}
		defer checkpoints.Close()
	}

	chatID := cfg.Telegram.ChatID
	executor := supervisor.NewExecutor(br, mem, chatID, cfg)
	pipeline := supervisor.NewPipeline(cfg, llm, mem, agents, executor, approvals, checkpoints, chatID)

	sup, err := supervisor.NewSupervisor(cfg, br, mem, pipeline, approvals, agents)
	if err != nil {
		return err
	}

	slog.Info("starting supervisor",
		"version", Version, "chat", chatID,
		"agents", len(agents), "hitl", cfg.HITL.Enabled)

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("supervisor stopped")
	return nil
}

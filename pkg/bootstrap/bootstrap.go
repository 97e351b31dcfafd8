// Package bootstrap is the BIOS of the agent society: it wires the
// ledger, LLM adapter, orchestrator and (optionally) visualizer hub
// from a validated config.SystemConfig, boots the founder agent, runs
// the scheduling loop to completion, and shuts everything down.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arcwright/agentos/pkg/config"
	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/llm"
	"github.com/arcwright/agentos/pkg/orchestrator"
	"github.com/arcwright/agentos/pkg/visualizer"
)

// Result is what a completed run reports back to the caller.
type Result struct {
	FounderID  string              `json:"founder_id"`
	FinalState orchestrator.Result `json:"final_state"`
	TotalCost  float64             `json:"total_cost"`
}

// Bios owns every system component for one run and is responsible for
// bringing them up and tearing them down in order.
type Bios struct {
	cfg    config.SystemConfig
	logger *slog.Logger

	ledger       *ledger.Ledger
	orchestrator *orchestrator.Orchestrator
	visualizer   *visualizer.Hub
	vizServer    *http.Server
}

// New constructs a Bios for cfg. Call Boot to bring the system up and
// run it; call Shutdown afterward regardless of Boot's outcome.
func New(cfg config.SystemConfig, logger *slog.Logger) *Bios {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bios{cfg: cfg, logger: logger.With("component", "bios")}
}

// Initialize constructs the ledger, the LLM adapter factory, the
// visualizer hub (if enabled), and the orchestrator, in that order.
func (b *Bios) Initialize(ctx context.Context) error {
	b.logger.Info("initializing agentos")

	b.ledger = ledger.New(b.logger)

	apiKey, err := config.ProviderAPIKey(b.cfg.Provider)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	model := config.ModelName(b.cfg.Model)
	adapter := llm.NewOpenAICompatible(5, 10, b.logger)
	llmFn := func(role string) (llm.Adapter, llm.CallConfig) {
		return adapter, llm.CallConfig{
			Provider:    b.cfg.Provider,
			Model:       model,
			APIKey:      apiKey,
			Temperature: 0.7,
			MaxTokens:   2048,
			Timeout:     60,
		}
	}

	if b.cfg.Visualize {
		b.visualizer = visualizer.NewHub(nil, b.logger)
	}

	b.orchestrator = orchestrator.New(b.ledger, b.cfg, llmFn, b.visualizer, b.logger)
	if b.visualizer != nil {
		b.visualizer.SetSnapshotter(b.orchestrator)
		b.vizServer = &http.Server{Addr: b.cfg.VisualizerAddr, Handler: b.visualizer}
		go func() {
			if err := b.vizServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				b.logger.Error("visualizer server failed", "error", err)
			}
		}()
		b.logger.Info("visualizer listening", "addr", b.cfg.VisualizerAddr)
	}

	b.logger.Info("agentos initialization complete")
	return nil
}

// Boot initializes the system, spawns the founder agent, and runs the
// scheduling loop to completion.
func (b *Bios) Boot(ctx context.Context) (Result, error) {
	if err := b.Initialize(ctx); err != nil {
		return Result{}, err
	}

	founderID, err := b.orchestrator.SpawnFounderAgent(ctx, b.cfg.Objective, b.cfg.InitialBudget)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: spawn founder agent: %w", err)
	}
	b.logger.Info("system booted", "founder_id", founderID)

	final, err := b.orchestrator.Run(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: orchestrator run: %w", err)
	}

	return Result{
		FounderID:  founderID,
		FinalState: final,
		TotalCost:  b.ledger.TotalExpenditure(),
	}, nil
}

// Shutdown stops the visualizer server, if one was started. The
// orchestrator itself has no separate shutdown step: Run already
// drains every agent goroutine before returning.
func (b *Bios) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down agentos")
	if b.vizServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.vizServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("bootstrap: visualizer shutdown: %w", err)
		}
	}
	b.logger.Info("agentos shutdown complete")
	return nil
}

// Run is the top-level entry point: Boot then always Shutdown,
// mirroring the original's try/finally.
func Run(ctx context.Context, cfg config.SystemConfig, logger *slog.Logger) (Result, error) {
	bios := New(cfg, logger)
	result, bootErr := bios.Boot(ctx)
	if err := bios.Shutdown(ctx); err != nil && bootErr == nil {
		return result, err
	}
	return result, bootErr
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentos is the CLI entry point for the agent society: it
// boots a founder agent against an objective and runs the scheduling
// loop to completion.
//
// Usage:
//
//	agentos run "Write a haiku about the sea and save it to a file." --budget 50
//	agentos check
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/arcwright/agentos/pkg/bootstrap"
	"github.com/arcwright/agentos/pkg/config"
	"github.com/arcwright/agentos/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run   RunCmd   `cmd:"" help:"Boot the founder agent and run to completion."`
	Check CheckCmd `cmd:"" help:"Report environment and provider credential status."`
}

// RunCmd boots and runs one simulation.
type RunCmd struct {
	Objective string `arg:"" help:"The objective the founder agent should achieve."`

	Budget    float64 `help:"Initial budget (USD) for the founder agent." default:"100"`
	MaxAgents int     `name:"max-agents" help:"Maximum number of agents the system may admit." default:"10"`
	LogLevel  string  `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`

	Provider string `help:"LLM provider (openai, deepseek, kimi, groq)." default:"openai"`
	Model    string `help:"Model name (defaults to AOS_MODEL_NAME, then gpt-4o-mini)."`

	Visualize      bool   `help:"Serve a live WebSocket visualizer of the agent graph."`
	VisualizerAddr string `name:"visualizer-addr" help:"Address the visualizer listens on." default:"localhost:8765"`

	Messaging      bool `help:"Allow agents to message each other." default:"true" negatable:""`
	AdvPlanning    bool `name:"adv-planning" help:"Validate the founder's plan with an architect pass before dispatch." default:"true" negatable:""`
	ToolCreation   bool `name:"tool-creation" help:"Allow agents to request new tools be forged at runtime." default:"true" negatable:""`
}

func (c *RunCmd) Run() error {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, "simple")
	log := logger.GetLogger()

	cfg := config.Default()
	cfg.Objective = c.Objective
	cfg.InitialBudget = c.Budget
	cfg.MaxAgents = c.MaxAgents
	cfg.LogLevel = c.LogLevel
	cfg.Provider = c.Provider
	cfg.Model = c.Model
	cfg.Visualize = c.Visualize
	cfg.VisualizerAddr = c.VisualizerAddr
	cfg.EnableMessaging = c.Messaging
	cfg.EnableAdvPlanning = c.AdvPlanning
	cfg.EnableToolCreation = c.ToolCreation

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, cancelling run")
		cancel()
	}()

	result, err := bootstrap.Run(ctx, cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("System completed. Founder: %s. Total cost: $%.2f\n", result.FounderID, result.TotalCost)
	return nil
}

// CheckCmd reports whether the environment is ready to run.
type CheckCmd struct {
	Provider string `help:"Provider to check credentials for." default:"openai"`
}

func (c *CheckCmd) Run() error {
	fmt.Println("agentos environment check")
	for _, provider := range []string{"openai", "deepseek", "kimi", "groq"} {
		_, err := config.ProviderAPIKey(provider)
		status := "ok"
		if err != nil {
			status = "missing"
		}
		marker := "  "
		if provider == c.Provider {
			marker = "->"
		}
		fmt.Printf("%s %-10s %s\n", marker, provider, status)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentos"),
		kong.Description("Budget-constrained orchestrator for a hierarchical society of autonomous agents."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		slog.Error("agentos failed", "error", err)
		os.Exit(1)
	}
}

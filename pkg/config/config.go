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

// Package config holds the immutable system-wide configuration
// snapshot assembled from CLI flags and environment at startup.
package config

import (
	"fmt"
	"os"
)

// SystemConfig is the validated, immutable configuration for one
// simulation run.
type SystemConfig struct {
	Objective string
	LogLevel  string

	InitialBudget float64
	MaxAgents     int

	PricePerMillionInputTokens  float64
	PricePerMillionOutputTokens float64
	SpawnCost                   float64
	ToolUseCost                 float64

	Provider string
	Model    string

	OutputBase     string
	DeliveryFolder string
	PluginsDir     string

	EnableMessaging    bool
	EnableAdvPlanning  bool
	EnableToolCreation bool
	Visualize          bool
	VisualizerAddr     string
}

// Default returns a SystemConfig populated with the original system's
// defaults, to be overridden by CLI flags.
func Default() SystemConfig {
	return SystemConfig{
		Objective:                   "Achieve a complex, multi-step goal.",
		LogLevel:                    "INFO",
		InitialBudget:               100.0,
		MaxAgents:                   10,
		PricePerMillionInputTokens:  5.0,
		PricePerMillionOutputTokens: 15.0,
		SpawnCost:                   0.01,
		ToolUseCost:                 0.005,
		Provider:                    "openai",
		OutputBase:                  "./output",
		DeliveryFolder:              "./delivery",
		PluginsDir:                  "./plugins",
		EnableMessaging:             true,
		EnableAdvPlanning:           true,
		EnableToolCreation:          true,
		Visualize:                   false,
		VisualizerAddr:              "localhost:8765",
	}
}

// Validate checks every invariant the original's __post_init__
// enforced, plus the provider-credential check the Go CLI surface
// adds.
func (c SystemConfig) Validate() error {
	if c.InitialBudget <= 0 {
		return fmt.Errorf("config: initial_budget must be positive, got %v", c.InitialBudget)
	}
	if c.MaxAgents <= 0 {
		return fmt.Errorf("config: max_agents must be a positive integer, got %d", c.MaxAgents)
	}
	if c.PricePerMillionInputTokens < 0 || c.PricePerMillionOutputTokens < 0 {
		return fmt.Errorf("config: token prices cannot be negative")
	}
	if c.SpawnCost < 0 || c.ToolUseCost < 0 {
		return fmt.Errorf("config: costs cannot be negative")
	}
	if c.Objective == "" {
		return fmt.Errorf("config: objective must not be empty")
	}
	if _, err := ProviderAPIKey(c.Provider); err != nil {
		return err
	}
	return nil
}

// ProviderAPIKey resolves the environment variable that holds the API
// key for provider, returning an error if it is unset. Provider names
// follow the original's env-var convention: OPENAI_API_KEY,
// DEEPSEEK_API_KEY, KIMI_API_KEY, GROQ_API_KEY.
func ProviderAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case "openai":
		envVar = "OPENAI_API_KEY"
	case "deepseek":
		envVar = "DEEPSEEK_API_KEY"
	case "kimi":
		envVar = "KIMI_API_KEY"
	case "groq":
		envVar = "GROQ_API_KEY"
	default:
		return "", fmt.Errorf("config: unknown provider %q", provider)
	}

	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("config: %s is not set", envVar)
	}
	return key, nil
}

// ModelName resolves the model identifier: an explicit --model flag
// wins, then AOS_MODEL_NAME, then "gpt-4o-mini". The fallback is the
// same for every provider.
func ModelName(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("AOS_MODEL_NAME"); env != "" {
		return env
	}
	return "gpt-4o-mini"
}

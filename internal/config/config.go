// Package config loads runtime settings from stuart.yaml and the
// environment. Every key can be overridden with a STUART_-prefixed
// environment variable; the provider API keys also honor their
// conventional unprefixed names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full runtime configuration.
type Settings struct {
	DataDir     string `mapstructure:"data_dir"`
	ArtifactDir string `mapstructure:"artifact_dir"`

	OpTimeout time.Duration `mapstructure:"op_timeout"`

	Context ContextSettings `mapstructure:"context"`
	Agent   AgentSettings   `mapstructure:"agent"`
}

// ContextSettings are the default budgets for context assembly.
type ContextSettings struct {
	MaxDepth    int `mapstructure:"max_depth"`
	MaxElements int `mapstructure:"max_elements"`
	MaxBytes    int `mapstructure:"max_bytes"`
}

// AgentSettings configure the LLM-backed change proposer.
type AgentSettings struct {
	OpenAIKey   string `mapstructure:"openai_api_key"`
	TogetherKey string `mapstructure:"together_api_key"`

	ReasoningModel string `mapstructure:"reasoning_model"`
	CodingModel    string `mapstructure:"coding_model"`

	// MaxAttempts bounds the propose/repair retry loop before the agent
	// gives up and escalates.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Load reads stuart.yaml (working directory, then ~/.stuart) merged with
// STUART_* environment variables. A missing config file is fine; defaults
// and the environment cover everything.
func Load() (*Settings, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".stuart"))
	v.SetDefault("artifact_dir", "generated")
	v.SetDefault("op_timeout", 5*time.Second)
	v.SetDefault("context.max_depth", 2)
	v.SetDefault("context.max_elements", 20)
	v.SetDefault("context.max_bytes", 0)
	v.SetDefault("agent.reasoning_model", "gpt-4o")
	v.SetDefault("agent.coding_model", "gpt-4o")
	v.SetDefault("agent.max_attempts", 3)

	v.SetConfigName("stuart")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home != "" {
		v.AddConfigPath(filepath.Join(home, ".stuart"))
	}

	v.SetEnvPrefix("STUART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys are usually set under their conventional names.
	_ = v.BindEnv("agent.openai_api_key", "STUART_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("agent.together_api_key", "STUART_TOGETHER_API_KEY", "TOGETHER_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &s, nil
}

// ValidateForAgent checks the settings needed before talking to a model
// provider. Store-only commands never call this.
func (s *Settings) ValidateForAgent() error {
	if s.Agent.OpenAIKey == "" && s.Agent.TogetherKey == "" {
		return fmt.Errorf("no provider configured: set OPENAI_API_KEY or TOGETHER_API_KEY")
	}
	return nil
}

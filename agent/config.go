package agent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable limits of one agent loop.
type Config struct {
	MaxIterations      int `json:"max_iterations" yaml:"max_iterations"`
	MaxParallelTools   int `json:"max_parallel_tools" yaml:"max_parallel_tools"`
	BreakerThreshold   int `json:"breaker_threshold" yaml:"breaker_threshold"`
	MaxReadOnlyNudges  int `json:"max_read_only_nudges" yaml:"max_read_only_nudges"`
	MaxTodoNudges      int `json:"max_todo_nudges" yaml:"max_todo_nudges"`
	MaxFileNudges      int `json:"max_file_nudges" yaml:"max_file_nudges"`
	MaxExploringStreak int `json:"max_exploring_streak" yaml:"max_exploring_streak"`
	MaxStopHookRetries int `json:"max_stop_hook_retries" yaml:"max_stop_hook_retries"`

	// ContextBudget is the model's context window in tokens; the
	// compactor's thresholds derive from it.
	ContextBudget int `json:"context_budget" yaml:"context_budget"`

	// TokenBudget caps total token spend for one run. 0 = unlimited.
	TokenBudget int `json:"token_budget" yaml:"token_budget"`

	EnableRepeatDetection bool `json:"enable_repeat_detection" yaml:"enable_repeat_detection"`
	RepeatWindow          int  `json:"repeat_window" yaml:"repeat_window"`

	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty" yaml:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int `json:"tool_line_limits,omitempty" yaml:"tool_line_limits,omitempty"`

	// SystemPrompt, when set, is prepended to a fresh transcript. Combine
	// with BuildSystemPrompt for environment and project-doc sections.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	Model string `json:"model" yaml:"model"`
	// FallbackModel is tried once when the primary model fails with a
	// retryable error. Empty disables fallback.
	FallbackModel   string        `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty"`
	Provider        string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	WorkingDir      string        `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
	ApprovalTimeout time.Duration `json:"approval_timeout,omitempty" yaml:"approval_timeout,omitempty"`
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         100,
		MaxParallelTools:      DefaultMaxParallelTools,
		BreakerThreshold:      DefaultBreakerThreshold,
		MaxReadOnlyNudges:     2,
		MaxTodoNudges:         2,
		MaxFileNudges:         1,
		MaxExploringStreak:    DefaultMaxExploringStreak,
		MaxStopHookRetries:    2,
		ContextBudget:         200000,
		EnableRepeatDetection: true,
		RepeatWindow:          10,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

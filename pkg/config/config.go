// Package config provides configuration loading and credential resolution
// for the feedback loop service.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig() returns the config BY VALUE (copy, not reference) to
// prevent external mutation; all updates go through LoadConfig or
// SetConfigForTesting.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"forgeloop/pkg/llm/middleware/retry"
)

// Provider identifiers for model backends.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Environment variable names for credentials.
const (
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvTogetherAPIKey  = "TOGETHER_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// ErrMissingCredential indicates that no API key could be resolved for a
// configured model. This is fatal for the component that needs the key.
var ErrMissingCredential = errors.New("missing API credential")

// ModelCfg configures one model role (planner or worker).
type ModelCfg struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// LoopCfg configures the feedback loop controller.
type LoopCfg struct {
	MaxRounds int `yaml:"max_rounds"`
}

// ResilienceCfg configures the client middleware chain.
type ResilienceCfg struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   retry.Config  `yaml:"retry"`
}

// SessionCfg bounds the in-memory session registries.
type SessionCfg struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
}

// BuildCfg configures build verification.
type BuildCfg struct {
	SkeletonDir string `yaml:"skeleton_dir"`
	Tool        string `yaml:"tool"`
}

// ServerCfg configures the HTTP API.
type ServerCfg struct {
	Addr string `yaml:"addr"`
}

// Config is the complete service configuration.
type Config struct {
	Planner    ModelCfg      `yaml:"planner"`
	Worker     ModelCfg      `yaml:"worker"`
	Loop       LoopCfg       `yaml:"loop"`
	Resilience ResilienceCfg `yaml:"resilience"`
	Sessions   SessionCfg    `yaml:"sessions"`
	Build      BuildCfg      `yaml:"build"`
	Server     ServerCfg     `yaml:"server"`
}

//nolint:gochecknoglobals // intentional singleton pattern for config management
var (
	config *Config
	mu     sync.RWMutex
)

// DefaultConfig returns the built-in defaults, matching the service's
// standard planner (Gemini) and worker (Together-hosted Qwen) setup.
func DefaultConfig() Config {
	return Config{
		Planner: ModelCfg{
			Provider:    ProviderGoogle,
			Model:       "gemini-2.5-flash",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Worker: ModelCfg{
			Provider:    ProviderOpenAI,
			Model:       "Qwen/Qwen3-Coder-480B-A35B-Instruct-FP8",
			BaseURL:     "https://api.together.xyz/v1",
			MaxTokens:   30000,
			Temperature: 0.3,
		},
		Loop: LoopCfg{MaxRounds: 3},
		Resilience: ResilienceCfg{
			Timeout: 5 * time.Minute,
			Retry:   retry.DefaultConfig,
		},
		Sessions: SessionCfg{
			MaxSessions: 1024,
			TTL:         2 * time.Hour,
		},
		Build: BuildCfg{
			SkeletonDir: "skeleton",
			Tool:        "npm",
		},
		Server: ServerCfg{Addr: ":8080"},
	}
}

// LoadConfig loads configuration into the global singleton. A missing file
// is not an error; defaults and environment overrides still apply. This
// should be called once at startup.
func LoadConfig(path string) error {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	return nil
}

// GetConfig returns a copy of the loaded configuration.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config, bypassing normal
// initialization. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// applyEnvOverrides layers environment variables over the file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANNER_MODEL"); v != "" {
		cfg.Planner.Model = v
	}
	if v := os.Getenv("PLANNER_PROVIDER"); v != "" {
		cfg.Planner.Provider = v
	}
	if v := os.Getenv("PLANNER_BASE_URL"); v != "" {
		cfg.Planner.BaseURL = v
	}
	if v := os.Getenv("WORKER_MODEL"); v != "" {
		cfg.Worker.Model = v
	}
	if v := os.Getenv("WORKER_PROVIDER"); v != "" {
		cfg.Worker.Provider = v
	}
	if v := os.Getenv("WORKER_BASE_URL"); v != "" {
		cfg.Worker.BaseURL = v
	}
}

func validate(cfg *Config) error {
	for _, mc := range []struct {
		role string
		cfg  *ModelCfg
	}{{"planner", &cfg.Planner}, {"worker", &cfg.Worker}} {
		switch mc.cfg.Provider {
		case ProviderGoogle, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		default:
			return fmt.Errorf("invalid %s provider: %q", mc.role, mc.cfg.Provider)
		}
		if mc.cfg.Model == "" {
			return fmt.Errorf("%s model must be set", mc.role)
		}
	}
	if cfg.Loop.MaxRounds < 1 {
		return fmt.Errorf("loop max_rounds must be at least 1, got %d", cfg.Loop.MaxRounds)
	}
	return nil
}

// ResolveAPIKey returns the credential for a model configuration. For
// OpenAI-compatible providers the key is chosen by base URL, matching how
// hosted endpoints like Together share the wire protocol but not the
// credential. Ollama needs no key and resolves to its host URL.
func ResolveAPIKey(mc ModelCfg) (string, error) {
	var envVar string
	switch mc.Provider {
	case ProviderGoogle:
		envVar = EnvGeminiAPIKey
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOllama:
		if host, err := GetSecret(EnvOllamaHost); err == nil && host != "" {
			return host, nil
		}
		return "", nil
	case ProviderOpenAI:
		switch {
		case strings.Contains(mc.BaseURL, "generativelanguage.googleapis.com"):
			envVar = EnvGeminiAPIKey
		case strings.Contains(mc.BaseURL, "api.together.xyz"):
			envVar = EnvTogetherAPIKey
		default:
			envVar = EnvOpenAIAPIKey
		}
	default:
		return "", fmt.Errorf("unknown provider: %s", mc.Provider)
	}

	key, err := GetSecret(envVar)
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: %s not found in secrets file or environment", ErrMissingCredential, envVar)
	}
	return key, nil
}

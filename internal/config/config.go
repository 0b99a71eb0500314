// Package config defines Parallax's configuration record (spec.md §6): a
// single YAML-backed struct covering the provider, planner, navigation,
// capture, observer, output, completion, metrics, browser, and vision
// surfaces, with environment-variable overrides for provider credentials.
//
// Shape grounded on the teacher's internal/config/config.go (DefaultConfig
// seed, nested per-section structs, applyEnvOverrides precedence chain),
// field set replaced entirely with spec.md §6's recognized options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"parallax/internal/logging"
)

// Config is Parallax's full configuration record.
type Config struct {
	// Provider selects the LLM backend: openai, anthropic, local, or auto.
	Provider string `yaml:"provider" json:"provider"`

	Planner    PlannerConfig    `yaml:"planner" json:"planner"`
	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`
	Capture    CaptureConfig    `yaml:"capture" json:"capture"`
	Observer   ObserverConfig   `yaml:"observer" json:"observer"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Completion CompletionConfig `yaml:"completion" json:"completion"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Vision     VisionConfig     `yaml:"vision" json:"vision"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// APIKeys holds the credential resolved for Provider by applyEnvOverrides.
	// Never round-tripped through YAML; only set at runtime.
	APIKeys ProviderCredentials `yaml:"-" json:"-"`

	// flattened legacy keys, normalized into the nested form in one
	// pre-parse pass (spec.md §9 "normalizes to the richer superset").
	Headless *bool `yaml:"headless,omitempty" json:"-"`
}

// ProviderCredentials carries the resolved API key per provider, set by
// applyEnvOverrides from the ANTHROPIC_API_KEY / OPENAI_API_KEY / ZAI_API_KEY
// precedence chain (SPEC_FULL.md §2.2).
type ProviderCredentials struct {
	Anthropic string
	OpenAI    string
	Gemini    string
	ZAI       string
}

// PlannerConfig configures Planner (A1) LLM calls (spec.md §6).
type PlannerConfig struct {
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TimeoutMs   int     `yaml:"timeout_ms" json:"timeout_ms"`
}

// NavigationConfig configures the Executor (A2) (spec.md §6).
type NavigationConfig struct {
	ActionBudget      int  `yaml:"action_budget" json:"action_budget"`
	DefaultWaitMs     int  `yaml:"default_wait_ms" json:"default_wait_ms"`
	SelfHealAttempts  int  `yaml:"self_heal_attempts" json:"self_heal_attempts"`
	ScrollMarginPx    int  `yaml:"scroll_margin_px" json:"scroll_margin_px"`
	// AuthRedirectFatal resolves spec.md §9's open question: whether
	// no_auth_redirects (a WARNING-level rule) also aborts further heal
	// attempts. Default false preserves the documented WARNING severity;
	// set true to match the heal logic's "abort further retries" text.
	AuthRedirectFatal bool `yaml:"auth_redirect_fatal" json:"auth_redirect_fatal"`
}

// Viewport is a width/height pair in CSS pixels (spec.md §6).
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// RedactConfig configures screenshot redaction (spec.md §4.4 step 7).
type RedactConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Selectors []string `yaml:"selectors" json:"selectors"`
}

// CaptureConfig configures Observer (A3) screenshot capture (spec.md §6).
type CaptureConfig struct {
	MultiViewport      bool     `yaml:"multi_viewport" json:"multi_viewport"`
	DesktopViewport    Viewport `yaml:"desktop_viewport" json:"desktop_viewport"`
	TabletViewport     Viewport `yaml:"tablet_viewport" json:"tablet_viewport"`
	MobileViewport     Viewport `yaml:"mobile_viewport" json:"mobile_viewport"`
	CropFocusPaddingPx int      `yaml:"crop_focus_padding_px" json:"crop_focus_padding_px"`
	Redact             RedactConfig `yaml:"redact" json:"redact"`
}

// ObserverConfig configures Observer (A3) classification thresholds (spec.md §6).
type ObserverConfig struct {
	RoleDiffThreshold float64 `yaml:"role_diff_threshold" json:"role_diff_threshold"`
	LoaderTimeoutMs   int     `yaml:"loader_timeout_ms" json:"loader_timeout_ms"`
	DetectionPollMs   int     `yaml:"detection_poll_ms" json:"detection_poll_ms"`
}

// OutputConfig configures Archivist (A4) output location (spec.md §6).
type OutputConfig struct {
	BaseDir string `yaml:"base_dir" json:"base_dir"`
}

// CompletionConfig configures the completion validator (spec.md §6, §4.9).
type CompletionConfig struct {
	MinTargets int `yaml:"min_targets" json:"min_targets"`
}

// MetricsConfig configures the Prometheus exporter (spec.md §6).
type MetricsConfig struct {
	PrometheusPort int `yaml:"prometheus_port" json:"prometheus_port"`
}

// BrowserConfig configures the browser driver (spec.md §6).
type BrowserConfig struct {
	Headless    bool   `yaml:"headless" json:"headless"`
	Project     string `yaml:"project" json:"project"` // chromium, firefox, webkit
	Channel     string `yaml:"channel,omitempty" json:"channel,omitempty"`
	UserDataDir string `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`
}

// VisionConfig configures the optional vision analyzer (spec.md §6).
type VisionConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider" json:"provider"` // openai, anthropic
}

// DefaultConfig returns Parallax's default configuration (spec.md §6 defaults).
func DefaultConfig() *Config {
	return &Config{
		Provider: "auto",
		Planner: PlannerConfig{
			MaxTokens:   1200,
			Temperature: 0.2,
			TimeoutMs:   10000,
		},
		Navigation: NavigationConfig{
			ActionBudget:      30,
			DefaultWaitMs:     1000,
			SelfHealAttempts:  1,
			ScrollMarginPx:    64,
			AuthRedirectFatal: false,
		},
		Capture: CaptureConfig{
			MultiViewport:      true,
			DesktopViewport:    Viewport{Width: 1366, Height: 832},
			TabletViewport:     Viewport{Width: 834, Height: 1112},
			MobileViewport:     Viewport{Width: 390, Height: 844},
			CropFocusPaddingPx: 16,
			Redact:             RedactConfig{Enabled: true, Selectors: nil},
		},
		Observer: ObserverConfig{
			RoleDiffThreshold: 0.2,
			LoaderTimeoutMs:   8000,
			DetectionPollMs:   150,
		},
		Output:     OutputConfig{BaseDir: "datasets"},
		Completion: CompletionConfig{MinTargets: 1},
		Metrics:    MetricsConfig{PrometheusPort: 9109},
		Browser: BrowserConfig{
			Headless: true,
			Project:  "chromium",
		},
		Vision: VisionConfig{
			Enabled:  false,
			Provider: "openai",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file is absent (lenient load; unknown keys are silently ignored by
// yaml.v3's default unmarshal behavior, spec.md §9).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalizeFlatKeys()
	cfg.applyEnvOverrides()
	logging.Boot("config loaded: provider=%s", cfg.Provider)

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// normalizeFlatKeys folds legacy flattened root-level keys into their nested
// home (spec.md §9, Open Question #2: "config file supports both flat and
// nested provider keys ... normalizes to the richer superset").
func (c *Config) normalizeFlatKeys() {
	if c.Headless != nil {
		c.Browser.Headless = *c.Headless
		c.Headless = nil
	}
}

// applyEnvOverrides resolves the provider API key from the environment, in
// priority order, and records it under APIKeys without mutating Provider
// unless the caller left it at "auto" (SPEC_FULL.md §2.2).
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.APIKeys.ZAI = key
		if c.Provider == "" || c.Provider == "auto" {
			c.Provider = "local"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.APIKeys.Anthropic = key
		if c.Provider == "" || c.Provider == "auto" {
			c.Provider = "anthropic"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.APIKeys.OpenAI = key
		if c.Provider == "" || c.Provider == "auto" {
			c.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.APIKeys.Gemini = key
	}
	if dir := os.Getenv("PARALLAX_OUTPUT_DIR"); dir != "" {
		c.Output.BaseDir = dir
	}
}

// ValidProviders lists every provider kind Provider may take.
var ValidProviders = []string{"openai", "anthropic", "local", "auto"}

// Validate checks that Provider is a known value and, when it names a cloud
// provider, that a credential was resolved for it.
func (c *Config) Validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider: %s (valid: %v)", c.Provider, ValidProviders)
	}
	switch c.Provider {
	case "anthropic":
		if c.APIKeys.Anthropic == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY required for provider=anthropic")
		}
	case "openai":
		if c.APIKeys.OpenAI == "" {
			return fmt.Errorf("OPENAI_API_KEY required for provider=openai")
		}
	}
	return nil
}

// PlannerTimeout returns Planner.TimeoutMs as a duration.
func (c *Config) PlannerTimeout() time.Duration {
	if c.Planner.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Planner.TimeoutMs) * time.Millisecond
}

// DefaultWait returns Navigation.DefaultWaitMs as a duration.
func (c *Config) DefaultWait() time.Duration {
	if c.Navigation.DefaultWaitMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Navigation.DefaultWaitMs) * time.Millisecond
}

// LoaderTimeout returns Observer.LoaderTimeoutMs as a duration.
func (c *Config) LoaderTimeout() time.Duration {
	if c.Observer.LoaderTimeoutMs <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.Observer.LoaderTimeoutMs) * time.Millisecond
}

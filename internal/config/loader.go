package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// ValidProviderNames lists known provider names per role. [Validate] warns
// about unrecognised names rather than failing, so third-party registry
// additions keep working.
var ValidProviderNames = map[string][]string{
	"classifier": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"generative": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated,
// defaulted [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates it, and applies
// defaults. Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued tuning knobs with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Dispatcher.DeadlineMS == 0 {
		c.Dispatcher.DeadlineMS = 2000
	}
	if c.Dispatcher.MemoryDeadlineMS == 0 {
		c.Dispatcher.MemoryDeadlineMS = 600
	}
	if c.Dispatcher.EmotionDeadlineMS == 0 {
		c.Dispatcher.EmotionDeadlineMS = 800
	}
	if c.Budget.DailyUSDDefault == 0 {
		c.Budget.DailyUSDDefault = 15.0
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Cache.LRUSize == 0 {
		c.Cache.LRUSize = 10000
	}
	if c.Memory.ImportanceFloor == 0 {
		c.Memory.ImportanceFloor = 0.3
	}
	if c.Memory.CleanupMinImportance == 0 {
		c.Memory.CleanupMinImportance = 0.3
	}
	if c.Memory.ContextK == 0 {
		c.Memory.ContextK = 5
	}
	if c.Memory.DecayIntervalMinutes == 0 {
		c.Memory.DecayIntervalMinutes = 60
	}
	if c.Push.BufferSize == 0 {
		c.Push.BufferSize = 256
	}
	if c.Push.HeartbeatSeconds == 0 {
		c.Push.HeartbeatSeconds = 30
	}
	if c.RateLimit.PerMinuteDefault == 0 {
		c.RateLimit.PerMinuteDefault = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("classifier", cfg.Providers.Classifier.Name)
	validateProviderName("generative", cfg.Providers.Generative.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.Classifier.Name != "" && cfg.Providers.Classifier.Model == "" {
		errs = append(errs, errors.New("providers.classifier.model is required when a classifier is configured"))
	}
	if cfg.Providers.Generative.Name != "" && cfg.Providers.Generative.Model == "" {
		errs = append(errs, errors.New("providers.generative.model is required when a generative provider is configured"))
	}
	if cfg.Providers.Classifier.Name == "" && cfg.Providers.Generative.Name == "" {
		slog.Warn("no classifier or generative provider configured; responses will be rule and template only")
	}

	if cfg.Providers.Embeddings.Name != "" {
		if cfg.Memory.EmbeddingDimensions <= 0 && cfg.Providers.Embeddings.Dimensions <= 0 {
			slog.Warn("providers.embeddings is configured but no embedding dimensions are set; defaulting to 1536")
		}
		if cfg.Memory.EmbeddingDimensions > 0 && cfg.Providers.Embeddings.Dimensions > 0 &&
			cfg.Memory.EmbeddingDimensions != cfg.Providers.Embeddings.Dimensions {
			errs = append(errs, fmt.Errorf("memory.embedding_dimensions %d does not match providers.embeddings.dimensions %d",
				cfg.Memory.EmbeddingDimensions, cfg.Providers.Embeddings.Dimensions))
		}
	}

	if cfg.Postgres.DSN == "" {
		slog.Warn("postgres.dsn is empty; memory, ledger, shared cache, and metric sink will run in-memory only")
	}

	if cfg.Dispatcher.Workers < 0 || cfg.Dispatcher.QueueDepth < 0 {
		errs = append(errs, errors.New("dispatcher.workers and dispatcher.queue_depth must not be negative"))
	}
	if cfg.Dispatcher.MemoryDeadlineMS > 0 && cfg.Dispatcher.DeadlineMS > 0 &&
		cfg.Dispatcher.MemoryDeadlineMS > cfg.Dispatcher.DeadlineMS {
		errs = append(errs, errors.New("dispatcher.memory_deadline_ms exceeds dispatcher.deadline_ms"))
	}
	if cfg.Dispatcher.EmotionDeadlineMS > 0 && cfg.Dispatcher.DeadlineMS > 0 &&
		cfg.Dispatcher.EmotionDeadlineMS > cfg.Dispatcher.DeadlineMS {
		errs = append(errs, errors.New("dispatcher.emotion_deadline_ms exceeds dispatcher.deadline_ms"))
	}

	if cfg.Budget.DailyUSDDefault < 0 {
		errs = append(errs, errors.New("budget.daily_usd_default must not be negative"))
	}

	idsSeen := make(map[string]int, len(cfg.Tenants))
	keysSeen := make(map[string]int, len(cfg.Tenants))
	for i, te := range cfg.Tenants {
		prefix := fmt.Sprintf("tenants[%d]", i)
		if te.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := idsSeen[te.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of tenants[%d]", prefix, te.ID, prev))
		} else {
			idsSeen[te.ID] = i
		}
		if te.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required", prefix))
		} else if prev, ok := keysSeen[te.APIKey]; ok {
			errs = append(errs, fmt.Errorf("%s.api_key is a duplicate of tenants[%d]", prefix, prev))
		} else {
			keysSeen[te.APIKey] = i
		}
		if te.Tier != "" && !tenant.Tier(te.Tier).IsValid() {
			errs = append(errs, fmt.Errorf("%s.tier %q is invalid; valid values: free, standard, pro, enterprise", prefix, te.Tier))
		}
		if te.DailyBudgetUSD < 0 {
			errs = append(errs, fmt.Errorf("%s.daily_budget_usd must not be negative", prefix))
		}
		for _, l := range te.Languages {
			if !tenant.Language(l).IsValid() {
				errs = append(errs, fmt.Errorf("%s.languages entry %q is invalid; valid values: zh, en, ja, ko", prefix, l))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given role.
func validateProviderName(role, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[role]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"role", role,
		"name", name,
		"known", known,
	)
}

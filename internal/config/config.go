// Package config loads the service configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backing-lab/internal/domain"
)

// Config is the top-level service configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Storage     StorageConfig      `yaml:"storage"`
	Cache       CacheConfig        `yaml:"cache"`
	Logging     LoggingConfig      `yaml:"logging"`
	Refresh     RefreshConfig      `yaml:"refresh"`
	Sources     SourcesConfig      `yaml:"sources"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	ExpiryHour int    `yaml:"expiry_hour_utc"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type RefreshConfig struct {
	Interval    time.Duration `yaml:"interval"`
	OnStartup   bool          `yaml:"on_startup"`
	Concurrency int           `yaml:"concurrency"` // instruments refreshed in parallel
}

type SourcesConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	MaxRetries     int                  `yaml:"max_retries"`
	RetryBaseDelay time.Duration        `yaml:"retry_base_delay"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type CircuitBreakerConfig struct {
	FailureThreshold    uint32        `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxRequests uint32        `yaml:"half_open_max_requests"`
}

// InstrumentConfig describes one tracked instrument and where its series come from.
type InstrumentConfig struct {
	ID              string           `yaml:"id"`
	Name            string           `yaml:"name"`
	Chain           string           `yaml:"chain"`
	TrackedSymbol   string           `yaml:"tracked_symbol"`
	ReferenceSymbol string           `yaml:"reference_symbol"`
	YieldURL        string           `yaml:"yield_url"`
	PriceURL        string           `yaml:"price_url"`
	Projection      ProjectionParams `yaml:"projection"`
}

// ProjectionParams is the YAML form of domain.ProjectionConfig.
// Optional tuning values fall back to domain defaults when omitted.
type ProjectionParams struct {
	StartDate       string            `yaml:"start_date"`
	Epoch           string            `yaml:"epoch"`
	Principal       float64           `yaml:"principal"`
	DenominatorMode string            `yaml:"denominator_mode"`
	TokenSupply     float64           `yaml:"token_supply"`
	SharesHeld      float64           `yaml:"shares_held"`
	CurveIntensity  *float64          `yaml:"curve_intensity"`
	SlopeMultiplier *float64          `yaml:"slope_multiplier"`
	Oscillation     OscillationParams `yaml:"oscillation"`
	StartDay        int               `yaml:"start_day"`
	EndDay          int               `yaml:"end_day"`
}

type OscillationParams struct {
	Amplitude         float64  `yaml:"amplitude"`
	Frequency         *float64 `yaml:"frequency"`
	Phase             float64  `yaml:"phase"`
	Offset            float64  `yaml:"offset"`
	DampeningRate     float64  `yaml:"dampening_rate"`
	DampeningStartDay int      `yaml:"dampening_start_day"`
}

// Default returns a configuration with every non-instrument field populated.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{ExpiryHour: 1},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Refresh: RefreshConfig{
			Interval:    time.Hour,
			OnStartup:   true,
			Concurrency: 2,
		},
		Sources: SourcesConfig{
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         5,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:    5,
				RecoveryTimeout:     30 * time.Second,
				HalfOpenMaxRequests: 1,
			},
		},
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadInstruments reads the YAML file at path and validates only the instruments.
// Offline tools use it when no storage is configured.
func LoadInstruments(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateInstruments(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv() {
	if v := env("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := env("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := env("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := env("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the service settings and every instrument.
func (c *Config) Validate() error {
	if c.Cache.ExpiryHour < 0 || c.Cache.ExpiryHour > 23 {
		return fmt.Errorf("cache.expiry_hour_utc must be within [0, 23], got %d", c.Cache.ExpiryHour)
	}
	if c.Refresh.Interval < 0 {
		return fmt.Errorf("refresh.interval must not be negative")
	}
	if c.Refresh.Concurrency < 0 {
		return fmt.Errorf("refresh.concurrency must not be negative")
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required unless storage.use_memory is set")
	}
	return c.ValidateInstruments()
}

// ValidateInstruments checks instrument IDs and every projection's parameters.
func (c *Config) ValidateInstruments() error {
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.ID == "" {
			return fmt.Errorf("instruments[%d].id is required", i)
		}
		if seen[inst.ID] {
			return fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		seen[inst.ID] = true
		if _, err := inst.Projection.Build(); err != nil {
			return fmt.Errorf("instrument %s: %w", inst.ID, err)
		}
	}
	return nil
}

// Instrument converts the YAML entry into a domain.Instrument.
func (ic InstrumentConfig) Instrument() (domain.Instrument, error) {
	proj, err := ic.Projection.Build()
	if err != nil {
		return domain.Instrument{}, err
	}
	return domain.Instrument{
		ID:              ic.ID,
		Name:            ic.Name,
		Chain:           ic.Chain,
		TrackedSymbol:   ic.TrackedSymbol,
		ReferenceSymbol: ic.ReferenceSymbol,
		Projection:      proj,
	}, nil
}

// Build converts the parameters into a validated domain.ProjectionConfig.
func (p ProjectionParams) Build() (domain.ProjectionConfig, error) {
	cfg := domain.DefaultProjectionConfig()

	if p.StartDate != "" {
		start, err := domain.ParseDay(p.StartDate)
		if err != nil {
			return cfg, &domain.ConfigurationError{Field: "startDate", Reason: err.Error()}
		}
		cfg.StartDate = start
	}
	if p.Epoch != "" {
		epoch, err := domain.ParseDay(p.Epoch)
		if err != nil {
			return cfg, &domain.ConfigurationError{Field: "epoch", Reason: err.Error()}
		}
		cfg.Epoch = epoch
	}

	cfg.Principal = p.Principal
	cfg.DenominatorMode = domain.DenominatorMode(strings.ToLower(p.DenominatorMode))
	cfg.TokenSupply = p.TokenSupply
	cfg.SharesHeld = p.SharesHeld
	if p.CurveIntensity != nil {
		cfg.CurveIntensity = *p.CurveIntensity
	}
	if p.SlopeMultiplier != nil {
		cfg.SlopeMultiplier = *p.SlopeMultiplier
	}

	cfg.Oscillation.Amplitude = p.Oscillation.Amplitude
	if p.Oscillation.Frequency != nil {
		cfg.Oscillation.Frequency = *p.Oscillation.Frequency
	}
	cfg.Oscillation.Phase = p.Oscillation.Phase
	cfg.Oscillation.Offset = p.Oscillation.Offset
	cfg.Oscillation.DampeningRate = p.Oscillation.DampeningRate
	cfg.Oscillation.DampeningStartDay = p.Oscillation.DampeningStartDay

	cfg.StartDay = p.StartDay
	cfg.EndDay = p.EndDay

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

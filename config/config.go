package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "5m". Plain integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the application configuration. Unknown YAML keys are
// rejected so typos surface at startup instead of silently falling back to
// defaults.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Arbitrage  ArbitrageConfig  `yaml:"arbitrage"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig configures the persisted catalog. An empty URL selects
// the built-in static catalog.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MongoConfig configures the optional run store. An empty URI selects the
// in-memory store.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// AggregatorConfig configures the pricing cycle and the adapter retry
// discipline.
type AggregatorConfig struct {
	CycleInterval    Duration            `yaml:"cycle-interval"`
	CycleDeadline    Duration            `yaml:"cycle-deadline"`
	StalenessCeiling map[string]Duration `yaml:"staleness-ceiling"` // per provider
	DefaultStaleness Duration            `yaml:"default-staleness"`
	ReadyGracePeriod Duration            `yaml:"ready-grace-period"`
	BackoffInitial   Duration            `yaml:"backoff-initial"`
	BackoffMax       Duration            `yaml:"backoff-max"`
	BackoffRetries   int                 `yaml:"backoff-retries"`
}

// AdapterConfig is the per-adapter I/O discipline and credentials handle.
type AdapterConfig struct {
	Enabled         bool     `yaml:"enabled"`
	APIKey          string   `yaml:"api-key"`
	Regions         []string `yaml:"regions"`
	RateLimit       float64  `yaml:"rate-limit"` // sustained QPS
	MinPollInterval Duration `yaml:"min-poll-interval"`
}

// AdaptersConfig groups the provider adapters.
type AdaptersConfig struct {
	AWS        AdapterConfig `yaml:"aws"`
	GCP        AdapterConfig `yaml:"gcp"`
	GCPProject string        `yaml:"gcp-project"`
	Azure      AdapterConfig `yaml:"azure"`
	LambdaLabs AdapterConfig `yaml:"lambdalabs"`
	RunPod     AdapterConfig `yaml:"runpod"`
	GPUKinds   []string      `yaml:"gpu-kinds"` // fetch filter
	Regions    []string      `yaml:"regions"`   // fetch filter
}

// OptimizerConfig configures the solve discipline.
type OptimizerConfig struct {
	SolverDeadline Duration `yaml:"solver-deadline"`
	SolverGap      float64  `yaml:"solver-gap"`
	SolverPoolSize int      `yaml:"solver-pool-size"`
	BalancedLambda float64  `yaml:"balanced-lambda"`
	CacheSize      int      `yaml:"cache-size"`
}

// ArbitrageConfig configures the detector.
type ArbitrageConfig struct {
	Threshold     float64           `yaml:"arbitrage-threshold"`
	Cooldown      Duration          `yaml:"arbitrage-cooldown"`
	RiskTolerance float64           `yaml:"risk-tolerance"`
	RegionClasses map[string]string `yaml:"region-classes"`
	BufferSize    int               `yaml:"buffer-size"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Mongo: MongoConfig{
			Database:   "cloudarb",
			Collection: "optimization_runs",
		},
		Aggregator: AggregatorConfig{
			CycleInterval:    Duration(60 * time.Second),
			CycleDeadline:    Duration(5 * time.Second),
			DefaultStaleness: Duration(10 * time.Minute),
			ReadyGracePeriod: Duration(30 * time.Second),
			BackoffInitial:   Duration(200 * time.Millisecond),
			BackoffMax:       Duration(2 * time.Second),
			BackoffRetries:   3,
		},
		Adapters: AdaptersConfig{
			AWS:        AdapterConfig{Enabled: true, Regions: []string{"us-east-1", "us-west-2"}},
			GCP:        AdapterConfig{Enabled: true, Regions: []string{"us-central1"}},
			Azure:      AdapterConfig{Enabled: true, Regions: []string{"eastus"}},
			LambdaLabs: AdapterConfig{Enabled: true},
			RunPod:     AdapterConfig{Enabled: true},
		},
		Optimizer: OptimizerConfig{
			SolverDeadline: Duration(30 * time.Second),
			SolverGap:      0.001,
			SolverPoolSize: 4,
			BalancedLambda: 0.5,
			CacheSize:      256,
		},
		Arbitrage: ArbitrageConfig{
			Threshold:     0.05,
			Cooldown:      Duration(5 * time.Minute),
			RiskTolerance: 0.5,
			BufferSize:    64,
		},
	}
}

// Load reads configuration from an optional YAML file and applies
// environment overrides. Unknown YAML keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Adapters.LambdaLabs.APIKey = getEnv("LAMBDA_API_KEY", c.Adapters.LambdaLabs.APIKey)
	c.Adapters.RunPod.APIKey = getEnv("RUNPOD_API_KEY", c.Adapters.RunPod.APIKey)
	c.Adapters.GCPProject = getEnv("GCP_PROJECT_ID", c.Adapters.GCPProject)

	if v := os.Getenv("SOLVER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Optimizer.SolverPoolSize = n
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

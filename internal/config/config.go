// Package config defines the application configuration and loads it from
// YAML files with environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"graph-allocopt/internal/deployment"
	"graph-allocopt/internal/domain"
)

// Configuration holds all configuration for the allocation optimizer.
type Configuration struct {
	Indexer      IndexerConfig      `yaml:"indexer"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Solver       SolverConfig       `yaml:"solver,omitempty"`
	Optimization OptimizationConfig `yaml:"optimization"`
	Constraints  ConstraintsConfig  `yaml:"constraints,omitempty"`
	Storage      StorageConfig      `yaml:"storage,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	Metrics      MetricsConfig      `yaml:"metrics,omitempty"`
}

// IndexerConfig identifies the indexer being optimized.
type IndexerConfig struct {
	Address string `yaml:"address"`
}

// GatewayConfig holds network subgraph endpoints.
type GatewayConfig struct {
	SubgraphURL       string `yaml:"subgraphUrl"`
	SubscriptionWSURL string `yaml:"subscriptionWsUrl,omitempty"` // enables epoch watching when set
}

// SolverConfig holds the optimization engine endpoint. An empty URL
// selects the built-in deterministic stand-in (dry runs only).
type SolverConfig struct {
	URL            string `yaml:"url,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// OptimizationConfig holds solver parameters.
type OptimizationConfig struct {
	GasPerAllocation   string  `yaml:"gasPerAllocation"`    // GRT, decimal string
	AllocationLifetime int     `yaml:"allocationLifetime"`  // epochs
	MaxNewAllocations  int     `yaml:"maxNewAllocations"`
	Mode               string  `yaml:"mode"`                // fast | optimal
	TauFactor          *string `yaml:"tauFactor,omitempty"` // enables smoothing mode when set
	MinSignal          string  `yaml:"minSignal,omitempty"` // GRT, decimal string
	NumReportedOptions int     `yaml:"numReportedOptions,omitempty"`
}

// ConstraintsConfig lists deployment constraints as IPFS hashes or hex IDs.
type ConstraintsConfig struct {
	Whitelist  []string `yaml:"whitelist,omitempty"`
	Blacklist  []string `yaml:"blacklist,omitempty"`
	Pinnedlist []string `yaml:"pinnedlist,omitempty"`
	Frozenlist []string `yaml:"frozenlist,omitempty"`
}

// StorageConfig holds optional persistence DSNs. Empty DSNs disable the
// corresponding store.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgresDsn,omitempty"`
	ClickHouseDSN string `yaml:"clickhouseDsn,omitempty"`
}

// LoggingConfig holds logging configuration options.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json, console
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr,omitempty"` // empty disables the endpoint
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with ALLOCOPT_
// override file values, e.g. ALLOCOPT_INDEXER_ADDRESS.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")
	v.SetEnvPrefix("allocopt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.applyDefaults()
	return &configuration, nil
}

func (c *Configuration) applyDefaults() {
	if c.Optimization.Mode == "" {
		c.Optimization.Mode = string(domain.ModeOptimal)
	}
	if c.Optimization.NumReportedOptions == 0 {
		c.Optimization.NumReportedOptions = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks required fields and value ranges.
func (c *Configuration) Validate() error {
	if c.Indexer.Address == "" {
		return fmt.Errorf("indexer.address is required")
	}
	if c.Gateway.SubgraphURL == "" {
		return fmt.Errorf("gateway.subgraphUrl is required")
	}
	if c.Optimization.MaxNewAllocations <= 0 {
		return fmt.Errorf("optimization.maxNewAllocations must be positive")
	}
	if c.Optimization.AllocationLifetime <= 0 {
		return fmt.Errorf("optimization.allocationLifetime must be positive")
	}
	if c.Optimization.GasPerAllocation == "" {
		return fmt.Errorf("optimization.gasPerAllocation is required")
	}

	mode := domain.OptMode(c.Optimization.Mode)
	if mode != domain.ModeFast && mode != domain.ModeOptimal {
		return fmt.Errorf("optimization.mode must be %q or %q, got %q",
			domain.ModeFast, domain.ModeOptimal, c.Optimization.Mode)
	}

	for _, list := range [][]string{
		c.Constraints.Whitelist,
		c.Constraints.Blacklist,
		c.Constraints.Pinnedlist,
		c.Constraints.Frozenlist,
	} {
		for _, id := range list {
			if !deployment.Valid(id) {
				return fmt.Errorf("invalid deployment id in constraints: %q", id)
			}
		}
	}

	return nil
}

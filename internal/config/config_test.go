package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
indexer:
  address: "0xd75c4dbcb215a6cf9097cfbcc70aab2596b96a9c"
gateway:
  subgraphUrl: "https://gateway.thegraph.com/network"
optimization:
  gasPerAllocation: "100"
  allocationLifetime: 28
  maxNewAllocations: 5
constraints:
  pinnedlist:
    - "QmNQa1FSTXNHmrjjfgUW3Px3Vkke4oKiFWdigWkYSux2Pi"
storage:
  postgresDsn: "postgres://localhost:5432/allocopt"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfiguration(t *testing.T) {
	conf, err := LoadConfiguration(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfiguration failed: %v", err)
	}

	if conf.Indexer.Address != "0xd75c4dbcb215a6cf9097cfbcc70aab2596b96a9c" {
		t.Errorf("unexpected indexer address: %s", conf.Indexer.Address)
	}
	if conf.Optimization.AllocationLifetime != 28 {
		t.Errorf("expected lifetime 28, got %d", conf.Optimization.AllocationLifetime)
	}
	if len(conf.Constraints.Pinnedlist) != 1 {
		t.Errorf("expected 1 pinned deployment, got %d", len(conf.Constraints.Pinnedlist))
	}
	if conf.Storage.ClickHouseDSN != "" {
		t.Errorf("expected empty clickhouse DSN, got %s", conf.Storage.ClickHouseDSN)
	}
}

func TestLoadConfiguration_Defaults(t *testing.T) {
	conf, err := LoadConfiguration(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfiguration failed: %v", err)
	}

	if conf.Optimization.Mode != "optimal" {
		t.Errorf("expected default mode optimal, got %s", conf.Optimization.Mode)
	}
	if conf.Optimization.NumReportedOptions != 1 {
		t.Errorf("expected default numReportedOptions 1, got %d", conf.Optimization.NumReportedOptions)
	}
	if conf.Logging.Level != "info" || conf.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", conf.Logging)
	}
}

func TestLoadConfiguration_MissingFile(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid, err := LoadConfiguration(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfiguration failed: %v", err)
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"missing indexer", func(c *Configuration) { c.Indexer.Address = "" }},
		{"missing gateway", func(c *Configuration) { c.Gateway.SubgraphURL = "" }},
		{"zero max allocations", func(c *Configuration) { c.Optimization.MaxNewAllocations = 0 }},
		{"zero lifetime", func(c *Configuration) { c.Optimization.AllocationLifetime = 0 }},
		{"missing gas", func(c *Configuration) { c.Optimization.GasPerAllocation = "" }},
		{"bad mode", func(c *Configuration) { c.Optimization.Mode = "turbo" }},
		{"bad constraint id", func(c *Configuration) { c.Constraints.Blacklist = []string{"not-a-deployment"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := LoadConfiguration(writeConfig(t, sampleConfig))
			if err != nil {
				t.Fatalf("LoadConfiguration failed: %v", err)
			}
			tt.mutate(conf)
			if err := conf.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// Package config loads safemigrate.toml, searching upward from the working
// directory to the project root. Missing files yield a config populated
// entirely from defaults.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/safemigrate/safemigrate/internal/errdefs"
)

// ConfigFile is the filename searched for in the directory tree.
const ConfigFile = "safemigrate.toml"

// EnvironmentConfig describes a single named environment.
type EnvironmentConfig struct {
	PostgresURL string `toml:"postgres_url"`
	SQLiteURL   string `toml:"sqlite_url"`
	Production  bool   `toml:"production"`
}

// RiskConfig carries the scoring policy constants. The level boundaries
// (25/50/75) and category weights are tunables carried for compatibility
// with existing assessments, not derived values.
type RiskConfig struct {
	Weights             map[string]float64 `toml:"weights"`
	LowUpperBound       float64            `toml:"low_upper_bound"`
	MediumUpperBound    float64            `toml:"medium_upper_bound"`
	HighUpperBound      float64            `toml:"high_upper_bound"`
	EnterpriseEnabled   bool               `toml:"enterprise_strategies"`
	DegradationPercent  float64            `toml:"degradation_threshold_percent"`
	BenchmarkIterations int                `toml:"benchmark_iterations"`
	LockTimeoutSeconds  int                `toml:"lock_timeout_seconds"`
}

type Config struct {
	Environments   map[string]EnvironmentConfig `toml:"environments"`
	Risk           RiskConfig                   `toml:"risk"`
	ConfigFilePath string                       `toml:"-"`
}

// DefaultRiskConfig returns the policy defaults applied when the config
// file is absent or leaves fields unset.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Weights: map[string]float64{
			"data_loss":               0.30,
			"system_availability":     0.25,
			"performance_degradation": 0.15,
			"referential_integrity":   0.20,
			"rollbackability":         0.10,
		},
		LowUpperBound:       25,
		MediumUpperBound:    50,
		HighUpperBound:      75,
		EnterpriseEnabled:   false,
		DegradationPercent:  20,
		BenchmarkIterations: 5,
		LockTimeoutSeconds:  30,
	}
}

// LoadConfig finds and parses safemigrate.toml, walking up from the
// current directory until a project boundary. A missing file is not an
// error; the returned config carries defaults and an empty ConfigFilePath.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return loadConfigFrom(startDir)
}

func loadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return parseConfigFile(configPath)
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{Risk: DefaultRiskConfig()}, nil
}

func parseConfigFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errdefs.ConfigError.Wrap(err, "failed to read %s", configPath)
	}

	config := Config{Risk: DefaultRiskConfig()}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, errdefs.ConfigError.Wrap(err, "failed to parse %s", configPath)
	}
	applyRiskDefaults(&config.Risk)

	config.ConfigFilePath = configPath
	return &config, nil
}

// applyRiskDefaults fills zero-valued fields so a partial [risk] section
// does not silently zero out the policy constants.
func applyRiskDefaults(rc *RiskConfig) {
	defaults := DefaultRiskConfig()
	if len(rc.Weights) == 0 {
		rc.Weights = defaults.Weights
	}
	if rc.LowUpperBound == 0 {
		rc.LowUpperBound = defaults.LowUpperBound
	}
	if rc.MediumUpperBound == 0 {
		rc.MediumUpperBound = defaults.MediumUpperBound
	}
	if rc.HighUpperBound == 0 {
		rc.HighUpperBound = defaults.HighUpperBound
	}
	if rc.DegradationPercent == 0 {
		rc.DegradationPercent = defaults.DegradationPercent
	}
	if rc.BenchmarkIterations == 0 {
		rc.BenchmarkIterations = defaults.BenchmarkIterations
	}
	if rc.LockTimeoutSeconds == 0 {
		rc.LockTimeoutSeconds = defaults.LockTimeoutSeconds
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}

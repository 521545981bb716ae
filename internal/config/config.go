// Package config loads and merges the TOML configuration: a built-in
// base config embedded in the binary, a user-supplied file merged on
// top, and CDVIZ_COLLECTOR__<SECTION>__<KEY> environment overrides on
// top of that (defaults ← embedded base TOML ← user TOML ← env), built
// over github.com/spf13/viper and github.com/pelletier/go-toml/v2.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/transformer"
)

//go:embed base.toml
var baseConfig string

// EnvPrefix is the required prefix for arbitrary config overrides:
// CDVIZ_COLLECTOR__<SECTION>__<KEY>=<value>.
const EnvPrefix = "CDVIZ_COLLECTOR__"

// ConfigPathEnvVar is the environment variable carrying the config file
// path fallback, read directly rather than through the generic override
// mechanism.
const ConfigPathEnvVar = "CDVIZ_COLLECTOR_CONFIG"

// ExtractorConfig is the discriminated union of extractor kinds,
// plus the no-op `sleep` kind used by tests and samples.
type ExtractorConfig struct {
	Type string `mapstructure:"type" toml:"type"`

	// http fields
	Host string `mapstructure:"host" toml:"host"`
	Port int    `mapstructure:"port" toml:"port"`

	// opendal fields
	StorageKind     string            `mapstructure:"storage_kind" toml:"storage_kind"`
	Parameters      map[string]string `mapstructure:"parameters" toml:"parameters"`
	PollingInterval string            `mapstructure:"polling_interval" toml:"polling_interval"`
	Recursive       bool              `mapstructure:"recursive" toml:"recursive"`
	PathPatterns    []string          `mapstructure:"path_patterns" toml:"path_patterns"`
	Parser          string            `mapstructure:"parser" toml:"parser"`
}

// SourceConfig is one entry in the `[sources]` table.
type SourceConfig struct {
	Enabled         bool                 `mapstructure:"enabled" toml:"enabled"`
	Extractor       ExtractorConfig      `mapstructure:"extractor" toml:"extractor"`
	TransformerRefs []string             `mapstructure:"transformer_refs" toml:"transformer_refs"`
	Transformers    []transformer.Config `mapstructure:"transformers" toml:"transformers"`
}

// SinkConfig is one entry in the `[sinks]` table: a discriminated union
// over db/http/folder/debug.
type SinkConfig struct {
	Type    string `mapstructure:"type" toml:"type"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`

	// http fields
	URL  string `mapstructure:"url" toml:"url"`
	Mode string `mapstructure:"mode" toml:"mode"`

	// db fields
	MinConnections int `mapstructure:"min_connections" toml:"min_connections"`
	MaxConnections int `mapstructure:"max_connections" toml:"max_connections"`

	// folder fields
	StorageKind string            `mapstructure:"storage_kind" toml:"storage_kind"`
	Parameters  map[string]string `mapstructure:"parameters" toml:"parameters"`
}

// Config is the fully merged, top-level configuration: three tables,
// each a map keyed by user-chosen name.
type Config struct {
	Sources      map[string]SourceConfig       `mapstructure:"sources" toml:"sources"`
	Sinks        map[string]SinkConfig         `mapstructure:"sinks" toml:"sinks"`
	Transformers map[string]transformer.Config `mapstructure:"transformers" toml:"transformers"`
}

// Load builds the merged Config: embedded base ← optional user file ←
// environment overrides. path == "" skips the user-file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if err := v.ReadConfig(strings.NewReader(baseConfig)); err != nil {
		return nil, fmt.Errorf("%w: base config: %v", errs.ErrConfigMalformed, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrConfigNotFound, path)
		}
		// Pre-validate with go-toml before handing the bytes to Viper:
		// its decode errors carry line/column positions, where Viper's
		// merge error loses them.
		var probe map[string]any
		if err := toml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfigMalformed, path, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfigMalformed, path, err)
		}
	}

	applyEnvOverrides(v, os.Environ())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigMalformed, err)
	}
	if cfg.Sources == nil {
		cfg.Sources = map[string]SourceConfig{}
	}
	if cfg.Sinks == nil {
		cfg.Sinks = map[string]SinkConfig{}
	}
	if cfg.Transformers == nil {
		cfg.Transformers = map[string]transformer.Config{}
	}
	return &cfg, nil
}

// applyEnvOverrides scans environ for CDVIZ_COLLECTOR__-prefixed
// variables and Sets each onto v at the dotted path derived from
// splitting the remainder on "__", lowercased — e.g.
// CDVIZ_COLLECTOR__SINKS__DEBUG__ENABLED=true sets sinks.debug.enabled.
// Implemented as a direct Set pass (rather than viper.AutomaticEnv's
// built-in prefix joining, which inserts a single underscore and cannot
// reproduce the fixed double-underscore separator) so that env overrides
// win over both the user file and the embedded base config.
func applyEnvOverrides(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, EnvPrefix)
		if rest == "" {
			continue
		}
		parts := strings.Split(rest, "__")
		for i, p := range parts {
			parts[i] = strings.ToLower(p)
		}
		key := strings.Join(parts, ".")
		v.Set(key, coerce(value))
	}
}

// coerce converts an env var's string value to a bool/int when it looks
// like one, so boolean/integer config fields (enabled, port, min/max
// connections, ...) round-trip correctly through Viper's Unmarshal.
func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

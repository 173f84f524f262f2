// Package config loads the process configuration from a layered YAML +
// environment source, grounded on the teacher's pkg/config/koanf_loader.go
// provider chain, trimmed to the file and env providers (the teacher's
// consul/etcd/zookeeper providers have no corresponding SPEC_FULL.md
// component — this engine is single-process, not a distributed config
// consumer) and extended with an fsnotify-driven hot reload.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from every environment variable before it is
// folded into the config tree, e.g. TASKFORGE_SERVER_ADDR -> server.addr.
const EnvPrefix = "TASKFORGE_"

// ServerConfig configures internal/server's HTTP/WS listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BreakerConfig configures internal/circuitbreaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// RepositoryConfig selects and configures internal/repository's backend.
type RepositoryConfig struct {
	Backend string `yaml:"backend"` // "memory" | "file" | "sqlite"
	Path    string `yaml:"path"`
}

// EventStoreConfig configures internal/eventstore's buffer sizes.
type EventStoreConfig struct {
	RingCapacity int `yaml:"ring_capacity"`
	TaskCapacity int `yaml:"task_capacity"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures internal/tracing, grounded on the teacher's
// pkg/observability.TracerConfig. The teacher exports to an OTLP
// collector; this process has no such collector in scope, so Enabled
// wires a stdout exporter instead — enough to exercise real spans
// without inventing an endpoint nothing in SPEC_FULL.md names.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Config is the root configuration tree for a taskforge process.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Repository RepositoryConfig `yaml:"repository"`
	EventStore EventStoreConfig `yaml:"event_store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// Default returns the configuration a zero-config run uses.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Addr: ":8080", ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second},
		Breaker:    BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second, HalfOpenMaxCalls: 3},
		Repository: RepositoryConfig{Backend: "memory"},
		EventStore: EventStoreConfig{RingCapacity: 1000, TaskCapacity: 200},
		Logging:    LoggingConfig{Level: "info"},
		Metrics:    MetricsConfig{Enabled: true},
		Tracing:    TracingConfig{Enabled: false, ServiceName: "taskforge", SamplingRate: 1.0},
	}
}

// envKeyMap converts an env var name (TASKFORGE_SERVER_ADDR) into a koanf
// dotted key (server.addr).
func envKeyMap(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}

// expandEnvRefs rewrites every "${VAR}" or "${VAR:-default}" reference
// inside k's string values, then reloads the result back into k via
// confmap.Provider. Grounded on the teacher's
// expandEnvVarsInKoanf/ExpandEnvVarsInData pair, trimmed to os.Expand's
// simpler (no nested-default-regex) substitution.
func expandEnvRefs(k *koanf.Koanf) error {
	expanded := expandEnvValue(k.Raw())
	m, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected root type %T after expansion", expanded)
	}

	fresh := koanf.New(".")
	if err := fresh.Load(confmap.Provider(m, "."), nil); err != nil {
		return err
	}
	*k = *fresh
	return nil
}

func expandEnvValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = expandEnvValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = expandEnvValue(item)
		}
		return out
	default:
		return v
	}
}

// expandEnvString resolves "${VAR}" and "${VAR:-default}" references
// against the process environment, leaving anything else untouched.
func expandEnvString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// Load reads path (if non-empty and the file exists) as YAML, then
// overlays environment variables prefixed with EnvPrefix, on top of
// Default(). A missing path is not an error — a zero-config deployment
// runs entirely off defaults and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyMap), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if err := expandEnvRefs(k); err != nil {
		return nil, fmt.Errorf("config: expanding ${VAR} references: %w", err)
	}

	// Unmarshal onto Default() rather than a zero Config, so a key absent
	// from both the file and the environment keeps its documented default
	// instead of becoming Go's zero value (e.g. an empty server.addr).
	out := Default()
	if err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return out, nil
}

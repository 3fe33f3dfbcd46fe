package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Runtime stores process settings read by viper from flags or environment variables.
type Runtime struct {
	ClusterID    string        `mapstructure:"CLUSTER_ID"`
	TickInterval time.Duration `mapstructure:"TICK_INTERVAL"`
	ListenAddr   string        `mapstructure:"LISTEN_ADDR"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	LogFormat    string        `mapstructure:"LOG_FORMAT"`

	GreptimeEndpoint string `mapstructure:"GREPTIMEDB_ENDPOINT"`
	GreptimeDatabase string `mapstructure:"GREPTIMEDB_DATABASE"`
}

// flagKeys maps command-line flags onto runtime keys.
var flagKeys = map[string]string{
	"cluster-id": "CLUSTER_ID",
	"tick":       "TICK_INTERVAL",
	"listen":     "LISTEN_ADDR",
	"log-level":  "LOG_LEVEL",
	"log-format": "LOG_FORMAT",
}

// LoadRuntime resolves runtime settings. Changed flags win over the
// environment, which wins over defaults. flags may be nil.
func LoadRuntime(flags *pflag.FlagSet) (*Runtime, error) {
	v := viper.New()

	v.SetDefault("CLUSTER_ID", "")
	v.SetDefault("TICK_INTERVAL", time.Duration(0))
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("GREPTIMEDB_ENDPOINT", "")
	v.SetDefault("GREPTIMEDB_DATABASE", "public")

	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, &ConfigError{Field: name, Reason: "cannot bind flag", Err: err}
				}
			}
		}
	}

	var rt Runtime
	if err := v.Unmarshal(&rt); err != nil {
		return nil, &ConfigError{Field: "runtime", Reason: "cannot decode settings", Err: err}
	}
	return &rt, nil
}

// Apply overlays non-empty runtime overrides onto cfg.
func (rt *Runtime) Apply(cfg *SimulationConfig) {
	if rt.ClusterID != "" {
		cfg.ClusterID = rt.ClusterID
	}
	if rt.TickInterval > 0 {
		cfg.TickIntervalMs = int(rt.TickInterval / time.Millisecond)
	}
}

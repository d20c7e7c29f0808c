package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// CoordinatorConfig contains all configuration for the coordinator
// service (spec §6 CLI surface).
type CoordinatorConfig struct {
	REST     RESTConfig     `mapstructure:"rest"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RESTConfig contains REST API server configuration.
type RESTConfig struct {
	Addr         string        `mapstructure:"addr"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig locates the artifact store's backing directory.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// RegistryConfig contains Job/Task Registry tunables (spec §3 Open Questions).
type RegistryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	WorkerTTL     time.Duration `mapstructure:"worker_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoadCoordinator loads the coordinator configuration from the given
// path, if any, then lets environment variables named per spec §6
// (COORDINATOR_BASE_URL, STORAGE_ROOT, and friends) override it. There
// is no env prefix: these names are the coordinator's public CLI
// surface, not an internal namespace.
func LoadCoordinator(configPath string) (*CoordinatorConfig, error) {
	v := viper.New()

	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.base_url", "http://localhost:8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 15*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("storage.root", "./data/artifacts")
	v.SetDefault("registry.max_retries", 3)
	v.SetDefault("registry.lease_ttl", 30*time.Second)
	v.SetDefault("registry.worker_ttl", 90*time.Second)
	v.SetDefault("registry.sweep_interval", 15*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("coordinator")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	_ = v.BindEnv("rest.base_url", "COORDINATOR_BASE_URL")
	_ = v.BindEnv("storage.root", "STORAGE_ROOT")
	_ = v.BindEnv("rest.addr", "LISTEN_ADDR")

	var cfg CoordinatorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

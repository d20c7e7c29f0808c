package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// WorkerConfig contains all configuration for the worker agent (spec §6
// CLI surface).
type WorkerConfig struct {
	Coordinator CoordinatorConnConfig `mapstructure:"coordinator"`
	Agent       AgentConfig           `mapstructure:"agent"`
	Logging     LoggingConfig         `mapstructure:"logging"`
}

// CoordinatorConnConfig locates the coordinator this worker polls.
type CoordinatorConnConfig struct {
	URL string `mapstructure:"url"`
}

// AgentConfig contains the worker's own identity and polling tunables.
type AgentConfig struct {
	WorkerID        string        `mapstructure:"worker_id"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval"`
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`
	ScratchRoot     string        `mapstructure:"scratch_root"`
	Concurrency     int64         `mapstructure:"concurrency"`
}

// LoadWorker loads the worker configuration from the given path, if
// any, then lets environment variables named per spec §6
// (COORDINATOR_URL, WORKER_ID, POLL_INTERVAL_MS, LEASE_TTL_MS) override
// it. There is no env prefix: these names are the worker's public CLI
// surface, not an internal namespace.
func LoadWorker(configPath string) (*WorkerConfig, error) {
	v := viper.New()

	v.SetDefault("coordinator.url", "")
	v.SetDefault("agent.worker_id", defaultWorkerID())
	v.SetDefault("agent.poll_interval", 500*time.Millisecond)
	v.SetDefault("agent.max_poll_interval", 10*time.Second)
	v.SetDefault("agent.lease_ttl", 30*time.Second)
	v.SetDefault("agent.scratch_root", os.TempDir())
	v.SetDefault("agent.concurrency", int64(1))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("worker")
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
	_ = v.BindEnv("coordinator.url", "COORDINATOR_URL")
	_ = v.BindEnv("agent.worker_id", "WORKER_ID")
	_ = v.BindEnv("agent.poll_interval", "POLL_INTERVAL_MS")
	_ = v.BindEnv("agent.lease_ttl", "LEASE_TTL_MS")

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(millisDurationHook)); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Coordinator.URL == "" {
		return nil, fmt.Errorf("COORDINATOR_URL is required")
	}

	return &cfg, nil
}

// millisDurationHook lets POLL_INTERVAL_MS/LEASE_TTL_MS (spec §6, bare
// milliseconds, no unit suffix) decode into time.Duration fields
// alongside config-file values already written as "500ms" strings.
func millisDurationHook(f, t reflect.Type, data any) (any, error) {
	if t != reflect.TypeOf(time.Duration(0)) || f.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-unknown"
	}
	return "worker-" + host
}

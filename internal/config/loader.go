package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var globalConfig atomic.Pointer[Config]

func Get() *Config {
	return globalConfig.Load()
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("system.environment", "sandbox")
	v.SetDefault("system.log_level", "INFO")
	v.SetDefault("streaming.max_reconnect_attempts", 5)
	v.SetDefault("streaming.reconnect_base_ms", 100)
	v.SetDefault("streaming.reconnect_max_ms", 30000)
	v.SetDefault("streaming.handshake_timeout_ms", 10000)
	v.SetDefault("streaming.close_timeout_ms", 5000)
	v.SetDefault("streaming.serialize_push", true)
	v.SetDefault("persistence.journal_db", "data/journal.db")
	v.SetDefault("persistence.cold_store_pool_size", 10)
	v.SetDefault("persistence.writer_buffer_size", 10000)
	v.SetDefault("monitoring.metrics_addr", ":9090")
	v.SetDefault("monitoring.data_stale_after_ms", 10000)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	globalConfig.Store(&cfg)
	return &cfg, nil
}

func WatchAndReload(configPath string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		var newCfg Config
		if err := v.Unmarshal(&newCfg); err != nil {
			slog.Error("failed to unmarshal reloaded config", "error", err)
			return
		}

		validate := validator.New()
		if err := validate.Struct(&newCfg); err != nil {
			slog.Error("reloaded config validation failed", "error", err)
			return
		}

		old := globalConfig.Load()
		globalConfig.Store(&newCfg)
		slog.Info("configuration reloaded successfully")

		if onChange != nil {
			onChange(&newCfg)
		}

		logConfigChanges(old, &newCfg)
	})

	return nil
}

func logConfigChanges(old, new *Config) {
	if old == nil || new == nil {
		return
	}
	if old.System.Environment != new.System.Environment {
		slog.Warn("environment changed; restart required to take effect",
			"old", old.System.Environment,
			"new", new.System.Environment,
		)
	}
	if old.System.LogLevel != new.System.LogLevel {
		slog.Info("log level changed",
			"old", old.System.LogLevel,
			"new", new.System.LogLevel,
		)
	}
}

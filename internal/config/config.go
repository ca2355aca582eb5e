package config

import "time"

type Config struct {
	System      SystemConfig               `mapstructure:"system" validate:"required"`
	Credentials CredentialsConfig          `mapstructure:"credentials"`
	Streaming   StreamingConfig            `mapstructure:"streaming" validate:"required"`
	RateLimits  map[string]RateLimitConfig `mapstructure:"rate_limits"`
	Persistence PersistenceConfig          `mapstructure:"persistence" validate:"required"`
	Monitoring  MonitoringConfig           `mapstructure:"monitoring"`
}

type SystemConfig struct {
	InstanceID  string `mapstructure:"instance_id" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,oneof=sandbox production"`
	LogLevel    string `mapstructure:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
}

// CredentialsConfig carries either a username/password pair, a pre-issued
// session token, or an OAuth client. Values are normally injected through
// TASTY_* environment variables rather than the YAML file.
type CredentialsConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SessionToken string `mapstructure:"session_token"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	AccountID    string `mapstructure:"account_id"`
}

func (c CredentialsConfig) UsesOAuth() bool {
	return c.ClientID != "" && c.RefreshToken != ""
}

type StreamingConfig struct {
	MaxReconnectAttempts int      `mapstructure:"max_reconnect_attempts" validate:"required,gt=0"`
	ReconnectBaseMs      int      `mapstructure:"reconnect_base_ms" validate:"required,gt=0"`
	ReconnectMaxMs       int      `mapstructure:"reconnect_max_ms" validate:"required,gt=0"`
	HandshakeTimeoutMs   int      `mapstructure:"handshake_timeout_ms" validate:"required,gt=0"`
	CloseTimeoutMs       int      `mapstructure:"close_timeout_ms" validate:"required,gt=0"`
	SerializePush        bool     `mapstructure:"serialize_push"`
	Symbols              []string `mapstructure:"symbols"`
}

func (c StreamingConfig) ReconnectBase() time.Duration {
	return time.Duration(c.ReconnectBaseMs) * time.Millisecond
}

func (c StreamingConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMs) * time.Millisecond
}

func (c StreamingConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

func (c StreamingConfig) CloseTimeout() time.Duration {
	return time.Duration(c.CloseTimeoutMs) * time.Millisecond
}

type RateLimitConfig struct {
	Capacity        int `mapstructure:"capacity" validate:"required,gt=0"`
	RefillPerSecond int `mapstructure:"refill_per_second" validate:"required,gt=0"`
}

type PersistenceConfig struct {
	JournalDB         string `mapstructure:"journal_db" validate:"required"`
	ColdStoreDSN      string `mapstructure:"cold_store_dsn"`
	ColdStorePoolSize int    `mapstructure:"cold_store_pool_size" validate:"gt=0"`
	WriterBufferSize  int    `mapstructure:"writer_buffer_size" validate:"gt=0"`
}

type MonitoringConfig struct {
	MetricsAddr      string   `mapstructure:"metrics_addr"`
	AlertChannels    []string `mapstructure:"alert_channels"`
	DataStaleAfterMs int      `mapstructure:"data_stale_after_ms" validate:"gt=0"`
}

func (c MonitoringConfig) DataStaleAfter() time.Duration {
	return time.Duration(c.DataStaleAfterMs) * time.Millisecond
}

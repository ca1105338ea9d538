package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the registry server configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RegistryConfig contains the curation parameters and escrow settings
type RegistryConfig struct {
	// EscrowAccount is the ledger account the registry escrows stakes into.
	EscrowAccount string `mapstructure:"escrow_account"`
	// MinDeposit is the minimum stake required to apply, in token units.
	MinDeposit string `mapstructure:"min_deposit"`
	// ApplicationPeriod is how long an application stays challengeable
	// before it auto-qualifies.
	ApplicationPeriod time.Duration `mapstructure:"application_period"`
	// CommitStageLength and RevealStageLength size each challenge poll.
	CommitStageLength time.Duration `mapstructure:"commit_stage_length"`
	RevealStageLength time.Duration `mapstructure:"reveal_stage_length"`
	// DispensationPct is the percentage of a reward pool reserved for
	// voters on the winning side (0-50).
	DispensationPct int64 `mapstructure:"dispensation_pct"`
	// AuditInterval is how often the escrow auditor re-checks conservation.
	AuditInterval time.Duration `mapstructure:"audit_interval"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "tcr")

	// Registry defaults
	viper.SetDefault("registry.escrow_account", "registry-escrow")
	viper.SetDefault("registry.min_deposit", "10")
	viper.SetDefault("registry.application_period", "72h")
	viper.SetDefault("registry.commit_stage_length", "24h")
	viper.SetDefault("registry.reveal_stage_length", "24h")
	viper.SetDefault("registry.dispensation_pct", 50)
	viper.SetDefault("registry.audit_interval", "5m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Registry.EscrowAccount == "" {
		return fmt.Errorf("registry.escrow_account is required")
	}
	if config.Registry.DispensationPct < 0 || config.Registry.DispensationPct > 50 {
		return fmt.Errorf("registry.dispensation_pct must be between 0 and 50")
	}
	if config.Registry.CommitStageLength <= 0 || config.Registry.RevealStageLength <= 0 {
		return fmt.Errorf("registry stage lengths must be positive")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

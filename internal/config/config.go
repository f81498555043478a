package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all process-level configuration for the application.
type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Market   Market   `mapstructure:"market"`
	Stats    Stats    `mapstructure:"stats"`
	Trading  Trading  `mapstructure:"trading"`
}

// Market holds the configuration for the market gateway.
type Market struct {
	GatewayURL     string  `mapstructure:"gateway_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	DryRun         bool    `mapstructure:"dry_run"`
}

// Server holds the configuration for the HTTP surfaces.
type Server struct {
	Port      int `mapstructure:"port"`
	StatsPort int `mapstructure:"stats_port"`
}

// Database holds the configuration for the execution ledger.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Stats holds the configuration for the log statistics aggregator.
type Stats struct {
	LogDir       string `mapstructure:"log_dir"`
	FilePattern  string `mapstructure:"file_pattern"`
	TradePattern string `mapstructure:"trade_pattern"`
	WindowBytes  int    `mapstructure:"window_bytes"`
	StorePath    string `mapstructure:"store_path"`
}

// Trading points at the durable trading document.
type Trading struct {
	ConfigPath string `mapstructure:"config_path"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultTradePattern matches the line the trader logs after a verified buy.
const DefaultTradePattern = `(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}).*trade verified.*Bought`

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	if err = loadDotEnv(); err != nil {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "trader.log") // tailed by the stats aggregator
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 7)
	v.SetDefault("logger.max_age_days", 30)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.stats_port", 5001)
	v.SetDefault("database.dsn", "trades.db")
	v.SetDefault("market.gateway_url", "http://127.0.0.1:9222")
	v.SetDefault("market.api_key", "")
	v.SetDefault("market.dry_run", false)
	v.SetDefault("market.rate_limit", 10)      // requests per second
	v.SetDefault("market.rate_limit_burst", 5) // burst size
	v.SetDefault("stats.log_dir", ".")
	v.SetDefault("stats.file_pattern", `.*\.log$`)
	v.SetDefault("stats.trade_pattern", DefaultTradePattern)
	v.SetDefault("stats.window_bytes", 1024)
	v.SetDefault("stats.store_path", "trade_stats.json")
	v.SetDefault("trading.config_path", "headless_config.json")

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

// loadDotEnv populates the environment from ./.env when present.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

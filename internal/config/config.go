package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Executor  ExecutorConfig  `yaml:"executor" mapstructure:"executor"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is
// the database file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CatalogConfig configures where catalog entries come from. With an empty
// Path the catalog is read from the store.
type CatalogConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// ExecutorConfig configures the test-execution service client.
type ExecutorConfig struct {
	BaseURL                 string            `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs             int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit               float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst                   int               `yaml:"burst" mapstructure:"burst"`
	CircuitFailureThreshold int               `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int               `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	Credentials             map[string]string `yaml:"credentials" mapstructure:"credentials"`
}

// DiscoveryConfig tunes the test runner.
type DiscoveryConfig struct {
	TestTimeoutSecs int  `yaml:"test_timeout_secs" mapstructure:"test_timeout_secs"`
	LockEntries     bool `yaml:"lock_entries" mapstructure:"lock_entries"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("catalog.cache_ttl_secs", 300)
	v.SetDefault("executor.timeout_secs", 60)
	v.SetDefault("executor.rate_limit", 5.0)
	v.SetDefault("executor.burst", 5)
	v.SetDefault("executor.circuit_failure_threshold", 5)
	v.SetDefault("executor.circuit_reset_secs", 30)
	v.SetDefault("discovery.test_timeout_secs", 60)
	v.SetDefault("discovery.lock_entries", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. Mode is one of "serve",
// "discover" or "catalog".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateExecution()...)
	case "discover":
		errs = append(errs, c.validateExecution()...)
	case "status":
		// Reads the store only.
	case "catalog":
		if c.Catalog.CacheTTLSecs < 0 {
			errs = append(errs, "catalog.cache_ttl_secs must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExecution() []string {
	var errs []string
	if c.Executor.BaseURL == "" {
		errs = append(errs, "executor.base_url is required")
	}
	if c.Executor.RateLimit <= 0 {
		errs = append(errs, "executor.rate_limit must be > 0")
	}
	if c.Discovery.TestTimeoutSecs < 1 || c.Discovery.TestTimeoutSecs > 600 {
		errs = append(errs, "discovery.test_timeout_secs must be between 1 and 600")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

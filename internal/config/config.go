package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Token     TokenConfig
	Cache     CacheConfig
	Modules   ModulesConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type TokenConfig struct {
	Secret        string
	TTL           time.Duration
	SweepInterval time.Duration
	// ReadmitPolicy controls what happens when a cryptographically valid,
	// unexpired token is missing from the active set: "signature" re-admits
	// it, "never" rejects anything revoked in this process lifetime.
	ReadmitPolicy string
}

type CacheConfig struct {
	ValidationTTL time.Duration
	SweepInterval time.Duration
}

type ModulesConfig struct {
	Dir       string
	AllowList []string
}

type SecurityConfig struct {
	ViolationThreshold int
	ViolationWindow    time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("GATEWAY")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("token.ttl", "24h")
	viper.SetDefault("token.sweepinterval", "1h")
	viper.SetDefault("token.readmitpolicy", "signature")
	viper.SetDefault("cache.validationttl", "5m")
	viper.SetDefault("cache.sweepinterval", "10m")
	viper.SetDefault("modules.dir", "./modules")
	viper.SetDefault("modules.allowlist", []string{
		"license-manager",
		"exam-lockdown",
		"webcam-monitor",
		"screen-recorder",
	})
	viper.SetDefault("security.violationthreshold", 5)
	viper.SetDefault("security.violationwindow", "24h")
	viper.SetDefault("ratelimit.requestspersecond", 5)
	viper.SetDefault("ratelimit.burst", 10)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if secret := os.Getenv("CDN_TOKEN_SECRET"); secret != "" {
		cfg.Token.Secret = secret
	}
	if dir := os.Getenv("MODULES_DIR"); dir != "" {
		cfg.Modules.Dir = dir
	}

	return &cfg, nil
}

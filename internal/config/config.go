package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	defaultAppName         = "CongoVault"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultChallengeTTL    = 5 * time.Minute
	defaultRateLimit       = 60
	defaultDBMaxConns      = 10
	defaultFactoryAddress  = "0x000000000000000000000000000000000000FAC7"
	devJWTSecret           = "development-only-secret"
	configFileEnvVar       = "VAULT_CONFIG_FILE"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Allocation prefunds a holder with an asset at boot. An empty asset or
// "native" denotes the native currency.
type Allocation struct {
	Address string `toml:"address" yaml:"address"`
	Asset   string `toml:"asset" yaml:"asset"`
	Amount  string `toml:"amount" yaml:"amount"`
}

// Config captures application runtime configuration loaded from an optional
// file and the environment.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	LogFile            string
	DatabaseURL        string
	DBMaxConns         int32
	RedisURL           string
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	JWTSecret          string
	RefreshSecret      string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ChallengeTTL       time.Duration
	RateLimitPerMinute int
	FactoryAddress     common.Address
	Genesis            []Allocation
}

// fileConfig mirrors Config in the on-disk format. Durations are written as
// Go duration strings such as "15m".
type fileConfig struct {
	AppName            string       `toml:"app_name" yaml:"app_name"`
	AppEnv             string       `toml:"app_env" yaml:"app_env"`
	Port               string       `toml:"port" yaml:"port"`
	LogLevel           string       `toml:"log_level" yaml:"log_level"`
	LogFile            string       `toml:"log_file" yaml:"log_file"`
	DatabaseURL        string       `toml:"database_url" yaml:"database_url"`
	DBMaxConns         int32        `toml:"db_max_conns" yaml:"db_max_conns"`
	RedisURL           string       `toml:"redis_url" yaml:"redis_url"`
	ShutdownTimeout    string       `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	IdempotencyTTL     string       `toml:"idempotency_ttl" yaml:"idempotency_ttl"`
	AccessTokenTTL     string       `toml:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL    string       `toml:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	ChallengeTTL       string       `toml:"challenge_ttl" yaml:"challenge_ttl"`
	RateLimitPerMinute int          `toml:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	FactoryAddress     string       `toml:"factory_address" yaml:"factory_address"`
	Genesis            []Allocation `toml:"genesis" yaml:"genesis"`
}

// Load builds the configuration from defaults, the file named by
// VAULT_CONFIG_FILE if any, and the environment, in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv(configFileEnvVar); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		AppName:            defaultAppName,
		AppEnv:             defaultAppEnv,
		Port:               defaultPort,
		LogLevel:           defaultLogLevel,
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		AccessTokenTTL:     defaultAccessTTL,
		RefreshTokenTTL:    defaultRefreshTTL,
		ChallengeTTL:       defaultChallengeTTL,
		RateLimitPerMinute: defaultRateLimit,
		DBMaxConns:         defaultDBMaxConns,
		FactoryAddress:     common.HexToAddress(defaultFactoryAddress),
	}
}

// LoadFile overlays a TOML or YAML file, chosen by extension, onto cfg. Only
// keys present in the file replace existing values.
func LoadFile(path string, cfg *Config) error {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file %q: want .toml, .yaml or .yml", path)
	}
	return fc.apply(cfg)
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.AppName, fc.AppName)
	setString(&cfg.AppEnv, fc.AppEnv)
	setString(&cfg.Port, fc.Port)
	setString(&cfg.LogLevel, strings.ToLower(fc.LogLevel))
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.RedisURL, fc.RedisURL)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownPeriod},
		{"idempotency_ttl", fc.IdempotencyTTL, &cfg.IdempotencyTTL},
		{"access_token_ttl", fc.AccessTokenTTL, &cfg.AccessTokenTTL},
		{"refresh_token_ttl", fc.RefreshTokenTTL, &cfg.RefreshTokenTTL},
		{"challenge_ttl", fc.ChallengeTTL, &cfg.ChallengeTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if fc.RateLimitPerMinute != 0 {
		cfg.RateLimitPerMinute = fc.RateLimitPerMinute
	}
	if fc.DBMaxConns != 0 {
		cfg.DBMaxConns = fc.DBMaxConns
	}
	if fc.FactoryAddress != "" {
		if !common.IsHexAddress(fc.FactoryAddress) {
			return fmt.Errorf("invalid factory_address %q", fc.FactoryAddress)
		}
		cfg.FactoryAddress = common.HexToAddress(fc.FactoryAddress)
	}
	if len(fc.Genesis) > 0 {
		cfg.Genesis = fc.Genesis
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.AppName, os.Getenv("APP_NAME"))
	setString(&cfg.AppEnv, os.Getenv("APP_ENV"))
	setString(&cfg.Port, os.Getenv("PORT"))
	setString(&cfg.LogLevel, strings.ToLower(os.Getenv("LOG_LEVEL")))
	setString(&cfg.LogFile, os.Getenv("LOG_FILE"))
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	setString(&cfg.JWTSecret, os.Getenv("JWT_SECRET"))
	setString(&cfg.RefreshSecret, os.Getenv("REFRESH_SECRET"))

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if err := envDuration(shutdownDurationEnvVar, &cfg.ShutdownPeriod); err != nil {
		return err
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if err := envDuration(idemTTLDurEnvVar, &cfg.IdempotencyTTL); err != nil {
		return err
	}

	for name, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":  &cfg.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": &cfg.RefreshTokenTTL,
		"CHALLENGE_TTL":     &cfg.ChallengeTTL,
	} {
		if err := envDuration(name, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("FACTORY_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("invalid FACTORY_ADDRESS %q", v)
		}
		cfg.FactoryAddress = common.HexToAddress(v)
	}
	return nil
}

// Validate enforces the settings a non-development deployment must provide
// and fills development fallbacks.
func (c *Config) Validate() error {
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = devJWTSecret
	}
	if c.RefreshSecret == "" {
		c.RefreshSecret = c.JWTSecret
	}
	if c.DBMaxConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	for i, a := range c.Genesis {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("genesis[%d]: invalid address %q", i, a.Address)
		}
		if asset := strings.TrimSpace(a.Asset); asset != "" && !strings.EqualFold(asset, "native") && !common.IsHexAddress(asset) {
			return fmt.Errorf("genesis[%d]: invalid asset %q", i, a.Asset)
		}
		if strings.TrimSpace(a.Amount) == "" {
			return fmt.Errorf("genesis[%d]: amount is required", i)
		}
	}
	return nil
}

// IsDevelopment reports whether in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

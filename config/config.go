// Package config loads service settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type SMTP struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	AppName  string `env:"APP_NAME" envDefault:"Account"`
}

// Config implements auth.Config
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseDSN     string        `env:"DATABASE_DSN" envDefault:"file:auth.db?cache=shared"`
	SigningKey      string        `env:"SIGNING_KEY,required,notEmpty"`
	Issuer          string        `env:"ISSUER"`
	Audience        []string      `env:"AUDIENCE" envSeparator:","`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"15m"`
	OTPTTL          time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts  int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	ResetLinkBase   string        `env:"RESET_LINK_BASE" envDefault:"http://localhost:3000/reset-password"`
	HashCost        int           `env:"HASH_COST" envDefault:"12"`
	HashConcurrency int           `env:"HASH_CONCURRENCY" envDefault:"0"`
	RefreshRecheck  bool          `env:"REFRESH_RECHECK_USER" envDefault:"true"`
	TenantHeader    string        `env:"TENANT_HEADER" envDefault:"X-Tenant-ID"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	SMTP            SMTP          `envPrefix:"SMTP_"`
}

// Prefix is prepended to every variable name
const Prefix = "AUTH_"

// Load reads optional .env files and then the process environment
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return Parse()
}

// Parse reads the process environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) GetSigningKey() string           { return c.SigningKey }
func (c *Config) GetIssuer() string               { return c.Issuer }
func (c *Config) GetAudience() []string           { return c.Audience }
func (c *Config) GetTokenTTL() time.Duration      { return c.TokenTTL }
func (c *Config) GetResetTokenTTL() time.Duration { return c.ResetTokenTTL }
func (c *Config) GetOTPTTL() time.Duration        { return c.OTPTTL }
func (c *Config) GetOTPMaxAttempts() int          { return c.OTPMaxAttempts }
func (c *Config) GetResetLinkBase() string        { return c.ResetLinkBase }

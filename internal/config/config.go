// Package config reads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config is the full process configuration.
type Config struct {
	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE,default=chat_db"`
	StoreDriver   string `env:"STORE_DRIVER,default=mongo"`

	JWTSecret    string        `env:"JWT_SECRET"`
	JWTKeys      string        `env:"JWT_KEYS"` // kid:secret,kid2:secret2
	JWTActiveKid string        `env:"JWT_ACTIVE_KID"`
	TokenTTL     time.Duration `env:"TOKEN_TTL,default=24h"`

	GRPCPort       int    `env:"GRPC_PORT,default=50051"`
	HTTPPort       int    `env:"HTTP_PORT,default=8080"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	TLSCert        string `env:"TLS_CERT"`
	TLSKey         string `env:"TLS_KEY"`
	RequireTLS     bool   `env:"REQUIRE_TLS,default=false"`

	RateLimitRPM int    `env:"RATE_LIMIT_RPM,default=10"`
	LogLevel     string `env:"LOG_LEVEL,default=INFO"`

	EnforceMembership  bool          `env:"ENFORCE_MEMBERSHIP,default=true"`
	AutoProvisionUsers bool          `env:"AUTO_PROVISION_USERS,default=false"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var problems []error
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			problems = append(problems, errors.New("MONGODB_URI must be set for the mongo driver"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" && c.JWTKeys == "" {
		problems = append(problems, errors.New("either JWT_SECRET or JWT_KEYS must be set"))
	}
	if c.JWTKeys != "" {
		keys, err := c.SigningKeys()
		if err != nil {
			problems = append(problems, err)
		} else if _, ok := keys[c.JWTActiveKid]; !ok {
			problems = append(problems, fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWTActiveKid))
		}
	}
	if c.RequireTLS && (c.TLSCert == "" || c.TLSKey == "") {
		problems = append(problems, errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured"))
	}
	return errors.Join(problems...)
}

// SigningKeys parses JWT_KEYS into a kid -> secret map.
func (c *Config) SigningKeys() (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(c.JWTKeys, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[kid] = secret
	}
	return keys, nil
}

// Origins returns the CORS allow list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// TLSEnabled reports whether both certificate files are configured.
func (c *Config) TLSEnabled() bool { return c.TLSCert != "" && c.TLSKey != "" }

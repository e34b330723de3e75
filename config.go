package symstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-facing configuration of a symstream deployment.
// Defaults are provided via struct tags and applied by LoadConfig.
type Config struct {
	// Name of the device. ENV: SYMSTREAM_NAME
	Name string `env:"SYMSTREAM_NAME,default=foxes"`
	// Mode is one of unbounded, session or shared. ENV: SYMSTREAM_MODE
	Mode string `env:"SYMSTREAM_MODE,default=session"`
	// Supply is the initial count for bounded modes; 0 selects the mode's
	// default. ENV: SYMSTREAM_SUPPLY
	Supply uint64 `env:"SYMSTREAM_SUPPLY,default=0"`
	// Symbol is hex encoded. ENV: SYMSTREAM_SYMBOL
	Symbol string `env:"SYMSTREAM_SYMBOL,default=f09fa68a"`

	// RedisAddr selects Redis-backed supply and sessions; empty keeps
	// everything in memory. ENV: SYMSTREAM_REDIS_ADDR
	RedisAddr string `env:"SYMSTREAM_REDIS_ADDR"`
	// KeyPrefix for all Redis keys. ENV: SYMSTREAM_KEY_PREFIX
	KeyPrefix string `env:"SYMSTREAM_KEY_PREFIX,default=symstream:"`

	// Listen is the HTTP listen address; empty streams one session to
	// stdout instead. ENV: SYMSTREAM_LISTEN
	Listen string `env:"SYMSTREAM_LISTEN"`
	// PublicURL is the externally visible stream endpoint. ENV: SYMSTREAM_PUBLIC_URL
	PublicURL string `env:"SYMSTREAM_PUBLIC_URL,default=http://localhost:8080/foxes"`
	// HMACSecret enables bearer authentication with HS256 tokens. ENV: SYMSTREAM_HMAC_SECRET
	HMACSecret string `env:"SYMSTREAM_HMAC_SECRET"`
	// OIDCIssuer enables bearer authentication against an OpenID Connect
	// issuer discovered at startup. ENV: SYMSTREAM_OIDC_ISSUER
	OIDCIssuer string `env:"SYMSTREAM_OIDC_ISSUER"`
	// JWKSURL enables bearer authentication against a static JWKS endpoint.
	// ENV: SYMSTREAM_JWKS_URL
	JWKSURL string `env:"SYMSTREAM_JWKS_URL"`
	// SessionKey is a hex encoded 32-byte Ed25519 seed used to sign session
	// handles; nodes sharing Redis must share it. Empty generates a
	// process-local key. ENV: SYMSTREAM_SESSION_KEY
	SessionKey string `env:"SYMSTREAM_SESSION_KEY"`
	// SessionTTL is the sliding idle lifetime of HTTP sessions. ENV: SYMSTREAM_SESSION_TTL
	SessionTTL time.Duration `env:"SYMSTREAM_SESSION_TTL,default=1h"`

	// BlockSize is the read size used by the stdio transport. ENV: SYMSTREAM_BLOCK_SIZE
	BlockSize int `env:"SYMSTREAM_BLOCK_SIZE,default=4096"`
	// Count limits the number of stdio reads; 0 reads to the end. ENV: SYMSTREAM_COUNT
	Count int `env:"SYMSTREAM_COUNT,default=0"`
}

// LoadConfig decodes Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// DeviceOptions translates the device-related fields into Register options.
func (c Config) DeviceOptions() ([]Option, error) {
	mode, err := ParseSupplyMode(c.Mode)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithMode(mode)}
	if c.Symbol != "" {
		sym, err := ParseSymbol(c.Symbol)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSymbol(sym))
	}
	if c.Supply > 0 {
		opts = append(opts, WithSupply(c.Supply))
	}
	return opts, nil
}

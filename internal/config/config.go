// Package config holds operator-level configuration for a Sentinel process.
//
// Values are resolved by Viper from, in order of precedence: command-line
// flags bound by the cmd package, SENTINEL_* environment variables, the
// optional sentinel.config.yaml file, and the defaults registered in init.
//
// Nothing here is per-request. The anonymization mapping is never part of
// configuration and is never persisted.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sentinel-privacy/sentinel/internal/classifier"
	"github.com/sentinel-privacy/sentinel/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the SENTINEL_ prefix
// (e.g. "signing_key" → SENTINEL_SIGNING_KEY) and to a YAML field
// in sentinel.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeySigningKey       = "signing_key"
	KeyAddr             = "addr"
	KeyMinScore         = "min_score"
	KeyEntities         = "entities"
	KeyDisabledEntities = "disabled_entities"
	KeyPatternFile      = "pattern_file"
	KeyAPIKeys          = "api_keys"
	KeyRateLimitRPS     = "rate_limit_rps"
	KeyRateLimitBurst   = "rate_limit_burst"
	KeyRedisURL         = "redis_url"
	KeyAuditEnabled     = "audit_enabled"
	KeyMaxBodyBytes     = "max_body_bytes"
	KeyCORSOrigins      = "cors_origins"
)

// Defaults that do NOT involve key material.
const (
	DefaultAddr         = ":8000"
	DefaultMaxBodyBytes = 1 << 20
	DefaultRateLimitRPS = 0
)

// DefaultEntities are the entity types detected when none are configured.
var DefaultEntities = []string{"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "LOCATION"}

// Config holds resolved operator-level configuration.
type Config struct {
	DataDir          string   // Base directory for state (~/.sentinel)
	SigningKey       string   // HMAC-SHA256 key for audit signing (≥32 bytes)
	Addr             string   // HTTP listen address
	MinScore         float64  // Detection confidence threshold
	Entities         []string // Enabled entity types (normalized)
	DisabledEntities []string
	PatternFile      string   // Optional recognizer YAML layered over the embedded set
	APIKeys          []string // "key:tenant" or "key" entries; empty disables auth
	RateLimitRPS     float64  // 0 disables rate limiting
	RateLimitBurst   int
	RedisURL         string // Shared rate-limit backend; empty uses in-process buckets
	AuditEnabled     bool
	MaxBodyBytes     int64
	CORSOrigins      []string

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the audit signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// ScannerOptions translates detection settings into classifier options.
func (c *Config) ScannerOptions() []classifier.ScannerOption {
	opts := []classifier.ScannerOption{classifier.WithMinScore(c.MinScore)}
	if c.PatternFile != "" {
		opts = append(opts, classifier.WithPatternFile(c.PatternFile))
	}
	if len(c.Entities) > 0 {
		opts = append(opts, classifier.WithEnabledEntities(c.Entities))
	}
	if len(c.DisabledEntities) > 0 {
		opts = append(opts, classifier.WithDisabledEntities(c.DisabledEntities))
	}
	return opts
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set
// and the audit trail is on.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey && c.AuditEnabled {
		log.Warn().Msg("Using generated default SENTINEL_SIGNING_KEY; set it via env var or config file for production")
	}
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers env binding and defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyAddr, DefaultAddr)
	v.SetDefault(KeyMinScore, classifier.DefaultMinScore)
	v.SetDefault(KeyEntities, DefaultEntities)
	v.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	v.SetDefault(KeyRateLimitBurst, 0)
	v.SetDefault(KeyAuditEnabled, true)
	v.SetDefault(KeyMaxBodyBytes, DefaultMaxBodyBytes)
}

// Load reads configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v (which merges env vars, config
// file, and defaults) and returns a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(v),
		SigningKey:       v.GetString(KeySigningKey),
		Addr:             v.GetString(KeyAddr),
		MinScore:         v.GetFloat64(KeyMinScore),
		Entities:         normalizeEntities(stringList(v.Get(KeyEntities))),
		DisabledEntities: normalizeEntities(stringList(v.Get(KeyDisabledEntities))),
		PatternFile:      v.GetString(KeyPatternFile),
		APIKeys:          stringList(v.Get(KeyAPIKeys)),
		RateLimitRPS:     v.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst:   v.GetInt(KeyRateLimitBurst),
		RedisURL:         v.GetString(KeyRedisURL),
		AuditEnabled:     v.GetBool(KeyAuditEnabled),
		MaxBodyBytes:     v.GetInt64(KeyMaxBodyBytes),
		CORSOrigins:      stringList(v.Get(KeyCORSOrigins)),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentinel"
	}
	return filepath.Join(home, ".sentinel")
}

// stringList accepts a YAML list or a comma/whitespace separated string
// (the form env vars arrive in).
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' })
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeEntities(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if n := classifier.NormalizeEntity(e); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. This is NOT cryptographically strong; it
// exists so a fresh install can sign its audit trail before a key is set.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("sentinel:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1 (got %g)", c.MinScore)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("rate_limit_burst must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	return nil
}

// validateSigningKey accepts ≥32 raw bytes or ≥64 hex characters.
func validateSigningKey(key string) error {
	if _, err := cryptoutil.DecodeKey(key); err != nil {
		return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (%v); set SENTINEL_SIGNING_KEY", err)
	}
	return nil
}

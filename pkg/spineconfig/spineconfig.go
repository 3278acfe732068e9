// Package spineconfig loads spineverify's CLI configuration: a YAML file
// for non-secret defaults (verifier mode, hash concurrency, known-issuer
// hints), and the trusted key sets from environment variables as JSON.
// The env-var substitution in YAML values and the "load, then apply
// defaults" two-step keep non-secret defaults in the YAML file and all
// trust material in environment variables instead.
package spineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ledgerspine/spine/pkg/keys"
)

// Config is the optional spineverify config file's shape.
type Config struct {
	DefaultMode     string            `yaml:"default_mode"`
	HashConcurrency int               `yaml:"hash_concurrency"`
	KnownIssuers    map[string]string `yaml:"known_issuers"` // issuerId -> human label, for CLI diagnostics only
}

func (c *Config) applyDefaults() {
	if c.DefaultMode == "" {
		c.DefaultMode = "strict"
	}
	if c.HashConcurrency <= 0 {
		c.HashConcurrency = 1
	}
}

// Load reads and parses a spineverify config file, substituting
// ${VAR}/${VAR:-default} references against the process environment
// before parsing. A missing path is not an error: Load returns
// defaults-only config so the CLI can run config-free.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		cfg.applyDefaults()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("spineconfig: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("spineconfig: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, fallback := groups[1], groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return fallback
	})
}

// These are the three environment variables spineverify reads for
// its per-call trust inputs, each a JSON object of keyId -> hex Ed25519
// public key, never written to disk by this package.
const (
	EnvGovernanceRoots = "SPINE_GOVERNANCE_ROOTS_JSON"
	EnvPricingSigners  = "SPINE_PRICING_SIGNERS_JSON"
	EnvTimeAuthorities = "SPINE_TIME_AUTHORITIES_JSON"
)

// LoadTrustedKeySetEnv loads a keys.TrustedKeySet from the JSON object
// stored in the named environment variable. An unset variable yields an
// empty, not nil, key set so callers can range over it unconditionally.
func LoadTrustedKeySetEnv(envVar string) (keys.TrustedKeySet, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return keys.TrustedKeySet{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("spineconfig: parse %s: %w", envVar, err)
	}
	return keys.ParseTrustedKeySetJSON(m)
}

package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/tokex-dev/tokex/internal/core"
	"github.com/tokex-dev/tokex/internal/validation"
)

const DefaultMaxDuration = 86400 // seconds

type Config struct {
	// Audience is the fixed value identifying this deployment. Presented
	// identity tokens must carry exactly this audience.
	Audience string `yaml:"audience"`

	// Providers lists the trusted OIDC issuers.
	Providers []ProviderConfig `yaml:"providers"`

	Limits   core.Limits    `yaml:"limits"`
	Services ServicesConfig `yaml:"services"`

	// Rules is the authorization policy. Default-deny: a request is only
	// authorized by an explicitly matching rule.
	Rules []core.Rule `yaml:"rules"`
}

// ProviderConfig identifies one trusted OIDC issuer.
type ProviderConfig struct {
	// Name is a human-readable identifier used in logs.
	Name string `yaml:"name"`

	// IssuerURL is the issuer as it appears in the 'iss' claim. Discovery
	// metadata is fetched from its /.well-known/openid-configuration.
	IssuerURL string `yaml:"issuer_url"`
}

// ServicesConfig holds the per-service credentials and endpoints.
type ServicesConfig struct {
	Oxide  []SiloConfig     `yaml:"oxide"`
	GitHub *GitHubAppConfig `yaml:"github"`
}

// SiloConfig holds the stored root credential for one rack silo.
type SiloConfig struct {
	// Silo is the silo URL, matched against SiloTokenRequest.Silo.
	Silo string `yaml:"silo"`

	// Token is the root credential used to call the silo's token API.
	Token Secret `yaml:"token"`
}

// GitHubAppConfig holds the hosting-platform application identity.
type GitHubAppConfig struct {
	// ClientID is the app's client identifier, used as the 'iss' of the
	// short-lived signed assertion.
	ClientID string `yaml:"client_id"`

	// PrivateKey is the app signing key in PEM format. Either inline or
	// via PrivateKeyPath.
	PrivateKey     Secret `yaml:"private_key"`
	PrivateKeyPath string `yaml:"private_key_path"`

	// Server is an optional enterprise server URL. Empty means the public
	// platform API.
	Server string `yaml:"server"`
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Audience == "" {
		return fmt.Errorf("audience is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one trusted provider is required")
	}

	issuers := make(map[string]struct{})
	for idx, p := range c.Providers {
		if p.IssuerURL == "" {
			return fmt.Errorf("provider at index %d has empty issuer_url", idx)
		}
		if _, dup := issuers[p.IssuerURL]; dup {
			return fmt.Errorf("duplicate provider issuer_url %q", p.IssuerURL)
		}
		issuers[p.IssuerURL] = struct{}{}
	}

	if c.Limits.MaxDuration == 0 {
		c.Limits.MaxDuration = DefaultMaxDuration
	} else if c.Limits.MaxDuration < 0 {
		return fmt.Errorf("limits.max_duration must be positive")
	}

	silos := make(map[string]struct{})
	for idx, s := range c.Services.Oxide {
		if s.Silo == "" {
			return fmt.Errorf("oxide silo at index %d has empty silo URL", idx)
		}
		if s.Token == "" {
			return fmt.Errorf("oxide silo %q has no root token", s.Silo)
		}
		if _, dup := silos[s.Silo]; dup {
			return fmt.Errorf("duplicate oxide silo %q", s.Silo)
		}
		silos[s.Silo] = struct{}{}
	}

	if gh := c.Services.GitHub; gh != nil {
		if gh.ClientID == "" {
			return fmt.Errorf("services.github.client_id is required")
		}
		if gh.PrivateKey == "" && gh.PrivateKeyPath == "" {
			return fmt.Errorf("services.github needs 'private_key' or 'private_key_path'")
		}
		if gh.PrivateKey != "" && gh.PrivateKeyPath != "" {
			return fmt.Errorf("services.github has both 'private_key' and 'private_key_path' set")
		}
	}

	validRules, err := validation.ValidateRules(c.Rules, issuers)
	if err != nil {
		return fmt.Errorf("validating rules: %w", err)
	}
	c.Rules = validRules

	return nil
}

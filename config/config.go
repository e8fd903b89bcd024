// Package config holds the user-level settings of the model repository
// tooling: commit author identity, default remote, proxy rules keyed by
// remote URL prefix, and the location of the credentials store.
//
// Settings live in a YAML file under the XDG config home and individual
// values can be overridden through environment variables, so scripted use
// never needs a file at all.
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"gopkg.in/yaml.v3"

	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// Environment variables recognized by Load. A value set in the environment
// takes precedence over the corresponding file entry.
const (
	// EnvConfigPath points at an alternative configuration file.
	EnvConfigPath = "MODELREPO_CONFIG"

	// EnvAuthorName and EnvAuthorEmail override the commit author identity.
	EnvAuthorName  = "MODELREPO_AUTHOR_NAME"
	EnvAuthorEmail = "MODELREPO_AUTHOR_EMAIL"

	// EnvRemote overrides the default remote URL for new repositories.
	EnvRemote = "MODELREPO_REMOTE"
)

// appDir is the directory under the XDG config home holding all files
// written by this package.
const appDir = "modelrepo"

const (
	configFileName      = "config.yaml"
	credentialsFileName = "credentials.yaml"
)

// Author identifies the commit author recorded on every commit the store
// creates.
type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ProxyRule routes remotes matching a URL prefix through an HTTP proxy.
type ProxyRule struct {
	// URL is the proxy endpoint, e.g. "http://proxy.example.com:3128".
	URL string `yaml:"url"`

	// Username and Password authenticate against the proxy when set.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Config is the decoded configuration file.
type Config struct {
	// Author is the identity used for commits.
	Author Author `yaml:"author"`

	// DefaultRemote seeds the remote URL when publishing a repository
	// that has none configured yet.
	DefaultRemote string `yaml:"default_remote,omitempty"`

	// DefaultBranch names the branch new repositories start on.
	DefaultBranch string `yaml:"default_branch,omitempty"`

	// Proxies maps remote URL prefixes to proxy rules. The longest
	// matching prefix wins; remotes matching no prefix connect directly.
	Proxies map[string]ProxyRule `yaml:"proxies,omitempty"`

	// CredentialsFile points at the credentials store. Empty selects the
	// default location in the same directory as the configuration.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// Default returns the built-in configuration used before any file or
// environment override is applied.
func Default() *Config {
	return &Config{
		DefaultBranch: store.DefaultBranch,
	}
}

// Path returns the configuration file location: EnvConfigPath when set,
// otherwise config.yaml under the XDG config home.
func Path() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	p, err := xdg.ConfigFile(filepath.Join(appDir, configFileName))
	if err != nil {
		return "", WrapError(err, "resolve config path")
	}

	return p, nil
}

// Load reads the configuration from the default location and applies
// environment overrides. A missing file yields the defaults, not an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	return LoadFile(path)
}

// LoadFile reads the configuration from an explicit path and applies
// environment overrides. A missing file yields the defaults, not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No file yet; defaults plus environment apply.
	case err != nil:
		return nil, WrapErrorf(err, "read config %q", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapErrorf(ErrInvalidConfig, "parse %q: %v", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return c.SaveFile(path)
}

// SaveFile writes the configuration to an explicit path, creating parent
// directories as needed. Proxy rules may carry passwords, so the file is
// readable by the owner only.
func (c *Config) SaveFile(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return WrapError(err, "encode config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapErrorf(err, "create %q", dir)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return WrapErrorf(err, "write config %q", path)
	}

	return nil
}

// Validate checks the configuration for values that would misbehave later.
func (c *Config) Validate() error {
	for prefix, rule := range c.Proxies {
		if prefix == "" {
			return WrapError(ErrInvalidConfig, "proxy rule with empty URL prefix")
		}

		if rule.URL == "" {
			return WrapErrorf(ErrInvalidConfig, "proxy rule %q has no proxy URL", prefix)
		}
	}

	return nil
}

// Signature converts the configured author into the store's commit
// signature.
func (c *Config) Signature() store.Signature {
	return store.Signature{
		Name:  c.Author.Name,
		Email: c.Author.Email,
	}
}

// CredentialsPath returns the credentials store location: the configured
// override or credentials.yaml under the XDG config home.
func (c *Config) CredentialsPath() (string, error) {
	if c.CredentialsFile != "" {
		return c.CredentialsFile, nil
	}

	p, err := xdg.ConfigFile(filepath.Join(appDir, credentialsFileName))
	if err != nil {
		return "", WrapError(err, "resolve credentials path")
	}

	return p, nil
}

// ProxyFor returns the proxy rule with the longest prefix matching the
// remote URL, or nil when the remote connects directly.
func (c *Config) ProxyFor(remoteURL string) *ProxyRule {
	var (
		best    *ProxyRule
		bestLen = -1
	)

	for prefix, rule := range c.Proxies {
		if strings.HasPrefix(remoteURL, prefix) && len(prefix) > bestLen {
			r := rule
			best = &r
			bestLen = len(prefix)
		}
	}

	return best
}

// Proxy resolves the transport proxy options for a remote, nil meaning a
// direct connection. It satisfies the refresh workflow's proxy collaborator,
// so a Config can be handed to the workflow directly.
func (c *Config) Proxy(_ context.Context, remoteURL string) (*transport.ProxyOptions, error) {
	rule := c.ProxyFor(remoteURL)
	if rule == nil {
		return nil, nil
	}

	return &transport.ProxyOptions{
		URL:      rule.URL,
		Username: rule.Username,
		Password: rule.Password,
	}, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAuthorName); v != "" {
		c.Author.Name = v
	}

	if v := os.Getenv(EnvAuthorEmail); v != "" {
		c.Author.Email = v
	}

	if v := os.Getenv(EnvRemote); v != "" {
		c.DefaultRemote = v
	}
}

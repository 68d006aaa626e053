// Package config loads the optional wfsync configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/wfsync/internal/manifest"
)

// FetchMethod selects how the template repository is retrieved
type FetchMethod string

const (
	FetchShell   FetchMethod = "shell"
	FetchBuiltin FetchMethod = "builtin"
)

// Defaults for the workflow template repository
const (
	DefaultRepoURL      = "https://github.com/tordks/claude-workflow.git"
	DefaultSubdir       = "data"
	DefaultFetchTimeout = 60 * time.Second
)

// configNames are searched for below the XDG config directories, in order
var configNames = []string{
	"wfsync/config.yaml",
	"wfsync/config.yml",
	"wfsync/config.toml",
}

// Config represents the complete wfsync configuration
type Config struct {
	Repo    RepoConfig    `yaml:"repo" toml:"repo"`
	Fetch   FetchConfig   `yaml:"fetch" toml:"fetch"`
	Install InstallConfig `yaml:"install" toml:"install"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
}

// RepoConfig configures the template repository
type RepoConfig struct {
	URL    string `yaml:"url" toml:"url"`
	Ref    string `yaml:"ref" toml:"ref"`
	Subdir string `yaml:"subdir" toml:"subdir"`
}

// FetchConfig configures repository retrieval
type FetchConfig struct {
	Method  FetchMethod `yaml:"method" toml:"method"`
	Timeout Duration    `yaml:"timeout" toml:"timeout"`
}

// InstallConfig configures which entries are managed in the target
type InstallConfig struct {
	Items   []string `yaml:"items" toml:"items"`
	Marker  string   `yaml:"marker" toml:"marker"`
	Workers int      `yaml:"workers" toml:"workers"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file" toml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file" toml:"https_token_file"`
}

// Duration is a time.Duration written as a Go duration string ("90s")
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML)
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// String returns the duration in Go notation
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. YAML and TOML are
// supported, selected by file extension.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Discover returns the first config file found in the XDG config
// directories, or an empty string when there is none.
func Discover() string {
	for _, name := range configNames {
		path, err := xdg.SearchConfigFile(name)
		if err == nil {
			return path
		}
	}
	return ""
}

// LoadOrDefault loads path when it is set, otherwise the discovered config
// file, otherwise the defaults. The returned string names the file used.
func LoadOrDefault(path string) (*Config, string, error) {
	if path == "" {
		path = Discover()
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.URL = os.ExpandEnv(c.Repo.URL)
	c.Repo.Ref = os.ExpandEnv(c.Repo.Ref)
	c.Repo.Subdir = os.ExpandEnv(c.Repo.Subdir)
	c.Install.Marker = os.ExpandEnv(c.Install.Marker)
	for i, item := range c.Install.Items {
		c.Install.Items[i] = os.ExpandEnv(item)
	}
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.URL == "" {
		c.Repo.URL = DefaultRepoURL
	}
	if c.Repo.Subdir == "" {
		c.Repo.Subdir = DefaultSubdir
	}
	if c.Fetch.Method == "" {
		c.Fetch.Method = FetchShell
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(DefaultFetchTimeout)
	}
	if len(c.Install.Items) == 0 {
		c.Install.Items = manifest.Default().Items
	}
	if c.Install.Marker == "" {
		c.Install.Marker = manifest.DefaultMarker
	}
	if c.Install.Workers == 0 {
		c.Install.Workers = runtime.NumCPU()
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.URL == "" {
		return errors.New("repo.url is required")
	}
	if filepath.IsAbs(c.Repo.Subdir) || strings.HasPrefix(filepath.Clean(c.Repo.Subdir), "..") {
		return fmt.Errorf("repo.subdir must be a relative path inside the repository: %s", c.Repo.Subdir)
	}

	switch c.Fetch.Method {
	case FetchShell, FetchBuiltin:
		// valid
	default:
		return fmt.Errorf("invalid fetch.method: %s (must be shell or builtin)", c.Fetch.Method)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative: %s", c.Fetch.Timeout)
	}

	if len(c.Install.Items) == 0 {
		return errors.New("install.items must list at least one entry")
	}
	for _, item := range c.Install.Items {
		if item == "" || filepath.IsAbs(item) || strings.Contains(filepath.ToSlash(item), "/") {
			return fmt.Errorf("install.items entries must be top-level names: %q", item)
		}
	}
	if c.Install.Workers < 0 {
		return fmt.Errorf("install.workers must not be negative: %d", c.Install.Workers)
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return errors.New("auth: only one of ssh_key_file or https_token_file may be set")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return errors.New("auth.ssh_key_file is set but repo.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return errors.New("auth.https_token_file is set but repo.url does not use HTTPS scheme")
	}

	return nil
}

// Manifest returns the tracked entries configured for installation
func (c *Config) Manifest() manifest.Manifest {
	items := make([]string, len(c.Install.Items))
	copy(items, c.Install.Items)
	return manifest.Manifest{Items: items, Marker: c.Install.Marker}
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the repo URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Repo.URL, "https://")
}

// IsSSH returns true if the repo URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Repo.URL, "git@") || strings.HasPrefix(c.Repo.URL, "ssh://")
}

// Package config loads hostsnap settings from defaults, an optional YAML file,
// HOSTSNAP_* environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// scriptUnsafe lists characters that would break out of a double-quoted
// shell word in the collector script.
const scriptUnsafe = "\"$`\\\n"

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix is the prefix for environment overrides, e.g. HOSTSNAP_HOST.
const EnvPrefix = "HOSTSNAP"

// Supported transports.
const (
	TransportOpenSSH = "openssh"
	TransportNative  = "native"
	TransportDocker  = "docker"
	TransportLocal   = "local"
)

// Config is the resolved configuration for a single invocation.
type Config struct {
	Host     string `mapstructure:"host"     yaml:"host"`
	User     string `mapstructure:"user"     yaml:"user"`
	Port     int    `mapstructure:"port"     yaml:"port"`
	Identity string `mapstructure:"identity" yaml:"identity,omitempty"`
	Keep     int    `mapstructure:"keep"     yaml:"keep"`
	Extract  bool   `mapstructure:"extract"  yaml:"extract"`

	Project     string `mapstructure:"project"      yaml:"project"`
	ProjectRoot string `mapstructure:"project_root" yaml:"project_root"`
	BackupRoot  string `mapstructure:"backup_root"  yaml:"backup_root"`

	Transport      string        `mapstructure:"transport"       yaml:"transport"`
	Container      string        `mapstructure:"container"       yaml:"container,omitempty"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	KnownHosts     string        `mapstructure:"known_hosts"     yaml:"known_hosts,omitempty"`
	SSHOptions     []string      `mapstructure:"ssh_options"     yaml:"ssh_options,omitempty"`
	RemoteTmp      string        `mapstructure:"remote_tmp"      yaml:"remote_tmp"`

	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`

	Debug   bool `mapstructure:"debug"    yaml:"debug"`
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`
}

// CollectorConfig tunes the remote collector script.
type CollectorConfig struct {
	ExtraSteps string `mapstructure:"extra_steps" yaml:"extra_steps,omitempty"`
}

// SetDefaults registers every key with its default so environment overrides
// are picked up on unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("user", "deploy")
	v.SetDefault("port", 22)
	v.SetDefault("identity", "")
	v.SetDefault("keep", 10)
	v.SetDefault("extract", false)
	v.SetDefault("project", "dmb")
	v.SetDefault("project_root", "/opt")
	v.SetDefault("backup_root", "")
	v.SetDefault("transport", TransportOpenSSH)
	v.SetDefault("container", "")
	v.SetDefault("connect_timeout", 30*time.Second)
	v.SetDefault("known_hosts", "")
	v.SetDefault("ssh_options", []string{})
	v.SetDefault("remote_tmp", "/tmp")
	v.SetDefault("collector.extra_steps", "")
	v.SetDefault("debug", false)
	v.SetDefault("no_color", false)
}

// DefaultPath returns $XDG_CONFIG_HOME/hostsnap/config.yaml (or the platform
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hostsnap", "config.yaml")
}

// DefaultBackupRoot returns "_backups" next to the current working directory.
func DefaultBackupRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return filepath.Join(filepath.Dir(cwd), "_backups"), nil
}

// Load resolves the configuration. Flags must already be bound to v. An
// explicit path must exist; without one the default path is read if present.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		if def := DefaultPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	if cfg.BackupRoot == "" {
		root, err := DefaultBackupRoot()
		if err != nil {
			return nil, err
		}
		cfg.BackupRoot = root
	}

	var err error
	for _, p := range []*string{&cfg.BackupRoot, &cfg.Identity, &cfg.KnownHosts, &cfg.Collector.ExtraSteps} {
		if *p, err = expandHome(*p); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate checks the settings needed for a backup run.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportOpenSSH, TransportNative, TransportLocal:
		if c.Host == "" {
			return fmt.Errorf("%w: host is required", ErrValidateConfig)
		}
	case TransportDocker:
		if c.Container == "" && c.Host == "" {
			return fmt.Errorf("%w: container (or host) is required for the docker transport", ErrValidateConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrValidateConfig, c.Transport)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrValidateConfig, c.Port)
	}
	if err := c.ValidateKeep(); err != nil {
		return err
	}
	return c.ValidateCollector()
}

// ValidateCollector checks the settings rendered into the collector script.
func (c *Config) ValidateCollector() error {
	if c.Project == "" {
		return fmt.Errorf("%w: project must not be empty", ErrValidateConfig)
	}
	if strings.ContainsAny(c.Project, "/ '\"$`\\") {
		return fmt.Errorf("%w: project %q contains invalid characters", ErrValidateConfig, c.Project)
	}
	if !strings.HasPrefix(c.RemoteTmp, "/") {
		return fmt.Errorf("%w: remote_tmp must be absolute, got %q", ErrValidateConfig, c.RemoteTmp)
	}
	if strings.ContainsAny(c.RemoteTmp, scriptUnsafe) {
		return fmt.Errorf("%w: remote_tmp %q contains invalid characters", ErrValidateConfig, c.RemoteTmp)
	}
	if c.ProjectRoot != "" && !strings.HasPrefix(c.ProjectRoot, "/") {
		return fmt.Errorf("%w: project_root must be absolute, got %q", ErrValidateConfig, c.ProjectRoot)
	}
	if strings.ContainsAny(c.ProjectRoot, scriptUnsafe) {
		return fmt.Errorf("%w: project_root %q contains invalid characters", ErrValidateConfig, c.ProjectRoot)
	}
	return nil
}

// ValidateKeep checks the retention setting on its own, for the rotate command.
func (c *Config) ValidateKeep() error {
	if c.Keep < 0 {
		return fmt.Errorf("%w: keep must be >= 0, got %d", ErrValidateConfig, c.Keep)
	}
	return nil
}

// Target returns the container name for the docker transport, falling back to host.
func (c *Config) Target() string {
	if c.Transport == TransportDocker && c.Container != "" {
		return c.Container
	}
	return c.Host
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

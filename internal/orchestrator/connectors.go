package orchestrator

import (
	"fmt"

	"github.com/eugenetaranov/hostsnap/internal/config"
	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/connector/docker"
	"github.com/eugenetaranov/hostsnap/internal/connector/local"
	"github.com/eugenetaranov/hostsnap/internal/connector/native"
	"github.com/eugenetaranov/hostsnap/internal/connector/openssh"
)

// NewConnector returns the transport selected by cfg.
func NewConnector(cfg *config.Config) (connector.Connector, error) {
	cc := connector.Config{
		Host:       cfg.Host,
		User:       cfg.User,
		Port:       cfg.Port,
		Identity:   cfg.Identity,
		KnownHosts: cfg.KnownHosts,
		Timeout:    cfg.ConnectTimeout,
	}

	switch cfg.Transport {
	case config.TransportOpenSSH:
		opts := make([]openssh.Option, 0, len(cfg.SSHOptions))
		for _, o := range cfg.SSHOptions {
			opts = append(opts, openssh.WithOption(o))
		}
		return openssh.New(cc, opts...), nil

	case config.TransportNative:
		return native.New(cc), nil

	case config.TransportDocker:
		// runs as the container's default user
		opts := []docker.Option{docker.WithEnv("LC_ALL", "C")}
		if cfg.ProjectRoot != "" {
			opts = append(opts, docker.WithWorkdir(cfg.ProjectRoot))
		}
		return docker.New(cfg.Target(), opts...), nil

	case config.TransportLocal:
		return local.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}

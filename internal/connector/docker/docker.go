// Package docker provides a connector that collects from a running Docker container.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// Connector executes commands inside a Docker container.
type Connector struct {
	container string
	user      string
	workdir   string
	env       map[string]string
}

// Option configures the Docker connector.
type Option func(*Connector)

// WithUser sets the user for command execution.
func WithUser(user string) Option {
	return func(c *Connector) {
		c.user = user
	}
}

// WithWorkdir sets the working directory for command execution.
func WithWorkdir(dir string) Option {
	return func(c *Connector) {
		c.workdir = dir
	}
}

// WithEnv adds an environment variable for command execution.
func WithEnv(key, value string) Option {
	return func(c *Connector) {
		c.env[key] = value
	}
}

// New creates a new Docker connector for the specified container.
func New(container string, opts ...Option) *Connector {
	c := &Connector{
		container: container,
		env:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect verifies the container exists and is running.
func (c *Connector) Connect(ctx context.Context) error {
	res, err := runner.Run(ctx, []string{"docker", "inspect", "-f", "{{.State.Running}}", c.container}, nil, true)
	if err != nil {
		return fmt.Errorf("container '%s' not found or not accessible: %w", c.container, err)
	}

	if strings.TrimSpace(res.Stdout) != "true" {
		return fmt.Errorf("container '%s' is not running", c.container)
	}

	return nil
}

// Execute runs a command inside the container.
func (c *Connector) Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error) {
	return runner.Run(ctx, c.buildExecArgs(cmd), input, strict)
}

// buildExecArgs builds the docker exec command arguments.
func (c *Connector) buildExecArgs(cmd string) []string {
	// -i keeps stdin attached so scripts can be piped in
	args := []string{"docker", "exec", "-i"}

	if c.user != "" {
		args = append(args, "-u", c.user)
	}

	if c.workdir != "" {
		args = append(args, "-w", c.workdir)
	}

	for k, v := range c.env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	return append(args, c.container, "/bin/sh", "-c", cmd)
}

// Download copies a file out of the container.
func (c *Connector) Download(ctx context.Context, src, dst string) error {
	argv := []string{"docker", "cp", fmt.Sprintf("%s:%s", c.container, src), dst}
	if _, err := runner.Run(ctx, argv, nil, true); err != nil {
		return fmt.Errorf("failed to copy file from container: %w", err)
	}
	return nil
}

// Prerequisites returns the docker CLI.
func (c *Connector) Prerequisites() []string {
	return []string{"docker"}
}

// Close is a no-op for Docker connections.
func (c *Connector) Close() error {
	return nil
}

// String returns a description of the connection.
func (c *Connector) String() string {
	if c.user != "" {
		return fmt.Sprintf("docker://%s@%s", c.user, c.container)
	}
	return fmt.Sprintf("docker://%s", c.container)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)

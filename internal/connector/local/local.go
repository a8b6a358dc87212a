// Package local provides a connector that runs the collector on the local machine.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"

	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// Connector executes commands on the local machine.
type Connector struct {
	shell     string
	shellArgs []string
}

// Option configures the local connector.
type Option func(*Connector)

// WithShell sets a custom shell for command execution.
func WithShell(shell string, args ...string) Option {
	return func(c *Connector) {
		c.shell = shell
		c.shellArgs = args
	}
}

// New creates a new local connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		shell:     "/bin/sh",
		shellArgs: []string{"-c"},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect verifies the platform can run the collector.
func (c *Connector) Connect(ctx context.Context) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		return nil
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Execute runs a command locally and returns the result.
func (c *Connector) Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error) {
	argv := append(append([]string{c.shell}, c.shellArgs...), cmd)
	return runner.Run(ctx, argv, input, strict)
}

// Download copies the local file src to dst.
func (c *Connector) Download(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	return out.Close()
}

// Prerequisites returns the shell used for execution.
func (c *Connector) Prerequisites() []string {
	return []string{c.shell}
}

// Close is a no-op for local connections.
func (c *Connector) Close() error {
	return nil
}

// String returns a description of the connection.
func (c *Connector) String() string {
	u, err := user.Current()
	if err != nil {
		return "local"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return fmt.Sprintf("local://%s@%s", u.Username, hostname)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)

// Package openssh provides a connector that drives the system ssh and scp clients.
package openssh

import (
	"context"
	"fmt"
	"strconv"

	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// Hint is shown when ssh or scp are missing.
const Hint = "Install the OpenSSH client (or Git for Windows, which ships ssh/scp)."

// Connector executes commands through the ssh binary and copies files with scp.
type Connector struct {
	cfg     connector.Config
	options []string
}

// Option configures the OpenSSH connector.
type Option func(*Connector)

// WithOption adds an extra -o option passed to both ssh and scp.
func WithOption(opt string) Option {
	return func(c *Connector) {
		c.options = append(c.options, opt)
	}
}

// New creates a new OpenSSH connector.
func New(cfg connector.Config, opts ...Option) *Connector {
	c := &Connector{
		cfg:     cfg,
		options: []string{"StrictHostKeyChecking=accept-new"},
	}
	if cfg.KnownHosts != "" {
		c.options = append(c.options, "UserKnownHostsFile="+cfg.KnownHosts)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect verifies the ssh and scp clients are installed. The transport opens
// a fresh session per command, so there is nothing to dial up front.
func (c *Connector) Connect(ctx context.Context) error {
	return runner.LookPath(Hint, c.Prerequisites()...)
}

// Execute runs cmd on the remote host through ssh.
func (c *Connector) Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error) {
	return runner.Run(ctx, c.sshArgs(cmd), input, strict)
}

// Download copies the remote file src to dst with scp.
func (c *Connector) Download(ctx context.Context, src, dst string) error {
	if _, err := runner.Run(ctx, c.scpArgs(src, dst), nil, true); err != nil {
		return fmt.Errorf("scp %s: %w", src, err)
	}
	return nil
}

// sshArgs builds: ssh -p PORT -o ... [-i KEY] user@host CMD
func (c *Connector) sshArgs(cmd string) []string {
	args := []string{"ssh", "-p", strconv.Itoa(c.cfg.Port)}
	args = append(args, c.commonArgs()...)
	return append(args, c.target(), cmd)
}

// scpArgs builds: scp -P PORT -o ... [-i KEY] user@host:SRC DST
func (c *Connector) scpArgs(src, dst string) []string {
	args := []string{"scp", "-P", strconv.Itoa(c.cfg.Port)}
	args = append(args, c.commonArgs()...)
	return append(args, c.target()+":"+src, dst)
}

func (c *Connector) commonArgs() []string {
	var args []string
	for _, o := range c.options {
		args = append(args, "-o", o)
	}
	if c.cfg.Identity != "" {
		args = append(args, "-i", c.cfg.Identity)
	}
	return args
}

func (c *Connector) target() string {
	if c.cfg.User == "" {
		return c.cfg.Host
	}
	return c.cfg.User + "@" + c.cfg.Host
}

// Prerequisites returns the OpenSSH client binaries.
func (c *Connector) Prerequisites() []string {
	return []string{"ssh", "scp"}
}

// PrerequisiteHint tells the user how to install the client binaries.
func (c *Connector) PrerequisiteHint() string {
	return Hint
}

// Close is a no-op; every command runs in its own ssh process.
func (c *Connector) Close() error {
	return nil
}

// String returns a description of the connection.
func (c *Connector) String() string {
	return fmt.Sprintf("ssh://%s:%d", c.target(), c.cfg.Port)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)

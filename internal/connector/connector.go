// Package connector defines the interface for executing commands on backup targets.
package connector

import (
	"context"
	"strings"
	"time"

	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// Connector is the interface for connecting to and executing commands on targets.
type Connector interface {
	// Connect establishes a connection to the target.
	Connect(ctx context.Context) error

	// Execute runs a shell command line on the target. When input is non-nil
	// it is fed to the command's stdin. With strict set, a non-zero exit is
	// returned as a *runner.ExecutionError.
	Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error)

	// Download copies the remote file src to the local path dst.
	Download(ctx context.Context, src, dst string) error

	// Prerequisites lists the local binaries the connector needs.
	Prerequisites() []string

	// Close terminates the connection.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// Config holds common configuration for remote connectors.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// User is the username for authentication.
	User string

	// Port is the remote shell port.
	Port int

	// Identity is an optional path to a private key.
	Identity string

	// KnownHosts is the known_hosts file used for host key checking.
	KnownHosts string

	// Timeout bounds connection establishment where the transport supports it.
	Timeout time.Duration
}

// ShellQuote quotes a string for safe use in POSIX shell commands.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

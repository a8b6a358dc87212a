// Package native provides an in-process SSH connector built on golang.org/x/crypto/ssh
// with SFTP for file transfer. It needs no local ssh/scp binaries.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// Connector executes commands over a single SSH client connection.
type Connector struct {
	cfg    connector.Config
	client *ssh.Client

	// agentConn is the ssh-agent socket when agent auth is used.
	agentConn net.Conn
}

// New creates a new native SSH connector.
func New(cfg connector.Config) *Connector {
	return &Connector{cfg: cfg}
}

// Connect dials the remote host and authenticates.
func (c *Connector) Connect(ctx context.Context) (err error) {
	auth, err := c.authMethods()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil && c.agentConn != nil {
			c.agentConn.Close()
			c.agentConn = nil
		}
	}()

	hostKeys, err := acceptNewHostKeys(c.cfg.KnownHosts)
	if err != nil {
		return err
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.cfg.Timeout,
	}

	address := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect via SSH to '%s': %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake with '%s' failed: %w", address, err)
	}

	c.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

// authMethods prefers an explicit identity file and falls back to ssh-agent.
func (c *Connector) authMethods() ([]ssh.AuthMethod, error) {
	if c.cfg.Identity != "" {
		key, err := os.ReadFile(c.cfg.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to read private SSH key: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, fmt.Errorf("private key %s is passphrase protected; load it into ssh-agent instead", c.cfg.Identity)
			}
			return nil, fmt.Errorf("failed to parse private SSH key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("no identity given and SSH_AUTH_SOCK is not set")
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ssh-agent: %w", err)
	}
	c.agentConn = conn

	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

// acceptNewHostKeys verifies host keys against path, recording keys of hosts
// that are not yet known. A changed key for a known host is rejected.
func acceptNewHostKeys(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open known_hosts: %w", err)
	}
	f.Close()

	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}

		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		kh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to record host key: %w", err)
		}
		defer kh.Close()

		_, err = fmt.Fprintln(kh, line)
		return err
	}, nil
}

// Execute runs cmd in a new SSH session.
func (c *Connector) Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error) {
	if c.client == nil {
		return nil, errors.New("not connected")
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if input != nil {
		session.Stdin = bytes.NewReader(input)
	}

	// Closing the session unblocks Run when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	err = session.Run(cmd)

	result := &runner.Result{
		Command: []string{c.String(), cmd},
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to run command: %w", err)
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	if strict {
		if err := result.Check(); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Download copies the remote file src to dst over SFTP.
func (c *Connector) Download(ctx context.Context, src, dst string) error {
	if c.client == nil {
		return errors.New("not connected")
	}

	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open remote file '%s': %w", src, err)
	}
	defer remoteFile.Close()

	localFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create local file '%s': %w", dst, err)
	}

	if _, err := io.Copy(localFile, remoteFile); err != nil {
		localFile.Close()
		return fmt.Errorf("failed to copy '%s' to '%s': %w", src, dst, err)
	}

	return localFile.Close()
}

// Prerequisites is empty; everything runs in-process.
func (c *Connector) Prerequisites() []string {
	return nil
}

// Close terminates the SSH connection.
func (c *Connector) Close() error {
	if c.agentConn != nil {
		c.agentConn.Close()
	}
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// String returns a description of the connection.
func (c *Connector) String() string {
	return fmt.Sprintf("ssh+native://%s@%s:%d", c.cfg.User, c.cfg.Host, c.cfg.Port)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)

package docker_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eugenetaranov/hostsnap/internal/config"
	"github.com/eugenetaranov/hostsnap/internal/connector/docker"
	"github.com/eugenetaranov/hostsnap/internal/logger"
	"github.com/eugenetaranov/hostsnap/internal/output"
	"github.com/eugenetaranov/hostsnap/internal/orchestrator"
)

// execInContainer runs a command in the container and returns stdout
func execInContainer(ctx context.Context, container testcontainers.Container, cmd []string) (int, string, error) {
	exitCode, reader, err := container.Exec(ctx, cmd)
	if err != nil {
		return exitCode, "", err
	}

	// Demux the Docker stream (stdout/stderr are multiplexed)
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)

	return exitCode, stdout.String(), nil
}

func setupTarget(t *testing.T, ctx context.Context) testcontainers.Container {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:      "debian:bookworm-slim",
		Cmd:        []string{"sleep", "600"},
		WaitingFor: wait.ForExec([]string{"echo", "ready"}).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start target container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	// a small project tree with its config files and a bare repository
	setup := `mkdir -p /opt/dmb/caddy /opt/dmb.git &&
echo 'services: {}' > /opt/dmb/docker-compose.yml &&
echo 'TOKEN=abc' > /opt/dmb/.env &&
echo ':80' > /opt/dmb/caddy/Caddyfile &&
echo 'ref: refs/heads/main' > /opt/dmb.git/HEAD`
	code, _, err := execInContainer(ctx, container, []string{"sh", "-c", setup})
	require.NoError(t, err)
	require.Equal(t, 0, code, "failed to seed project tree")

	return container
}

func TestBackupFromContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker CLI not available")
	}

	ctx := context.Background()
	container := setupTarget(t, ctx)

	cfg := &config.Config{
		Container:   container.GetContainerID(),
		User:        "root",
		Port:        22,
		Keep:        10,
		Extract:     true,
		Project:     "dmb",
		ProjectRoot: "/opt",
		BackupRoot:  filepath.Join(t.TempDir(), "_backups"),
		Transport:   config.TransportDocker,
		RemoteTmp:   "/tmp",
	}
	require.NoError(t, cfg.Validate())

	conn := docker.New(cfg.Target(), docker.WithUser("root"))

	var buf bytes.Buffer
	out := output.New(&buf)
	out.SetColor(false)

	run, err := orchestrator.New(out, logger.Nop()).Backup(ctx, conn, cfg)
	require.NoError(t, err, "backup failed: %s", buf.String())
	t.Logf("Backup output:\n%s", buf.String())

	t.Run("Artifacts", func(t *testing.T) {
		info, err := os.Stat(run.ArchivePath)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
		assert.FileExists(t, filepath.Join(run.Dir, "_manifest.txt"))
		assert.FileExists(t, filepath.Join(run.Dir, "_sha256.txt"))
	})

	t.Run("Snapshot", func(t *testing.T) {
		staged := filepath.Join(run.ExtractDir, "dmb-backup-"+run.Timestamp)
		assert.FileExists(t, filepath.Join(staged, "files", "dmb.tgz"))
		assert.FileExists(t, filepath.Join(staged, "files", "dmb.git.tgz"))

		env, err := os.ReadFile(filepath.Join(staged, "etc", ".env"))
		require.NoError(t, err)
		assert.Equal(t, "TOKEN=abc\n", string(env))

		osRelease, err := os.ReadFile(filepath.Join(staged, "packages", "os-release.txt"))
		require.NoError(t, err)
		assert.Contains(t, string(osRelease), "bookworm")
	})

	t.Run("Facts", func(t *testing.T) {
		require.NotNil(t, run.Facts)
		assert.Equal(t, "debian", run.Facts.Distribution)
		assert.Equal(t, "apt", run.Facts.PkgManager)
		assert.Equal(t, "root", run.Facts.User)
	})

	t.Run("RemoteCleanup", func(t *testing.T) {
		code, stdout, err := execInContainer(ctx, container, []string{"sh", "-c", "ls /tmp | grep dmb-backup- || true"})
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Empty(t, strings.TrimSpace(stdout))
	})
}

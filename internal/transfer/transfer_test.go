package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/connector/local"
	"github.com/eugenetaranov/hostsnap/internal/logger"
	"github.com/eugenetaranov/hostsnap/internal/runner"
)

// failingConnector wraps the local connector and fails downloads on demand.
type failingConnector struct {
	*local.Connector
	downloadErr error
	execErr     error
}

func (f *failingConnector) Download(ctx context.Context, src, dst string) error {
	if f.downloadErr != nil {
		// leave a partial file behind like an interrupted copy would
		os.WriteFile(dst, []byte("partial"), 0o644)
		return f.downloadErr
	}
	return f.Connector.Download(ctx, src, dst)
}

func (f *failingConnector) Execute(ctx context.Context, cmd string, input []byte, strict bool) (*runner.Result, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.Connector.Execute(ctx, cmd, input, strict)
}

var _ connector.Connector = (*failingConnector)(nil)

func TestLocalArchiveName(t *testing.T) {
	tests := []struct {
		project string
		remote  string
		want    string
	}{
		{"dmb", "/tmp/dmb-backup-20240301-101500.tgz", "snapshot-20240301-101500.tgz"},
		{"shop", "/var/tmp/shop-backup-20240301-101500.tgz", "snapshot-20240301-101500.tgz"},
		{"dmb", "/tmp/other.tgz", "other.tgz"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LocalArchiveName(tt.project, tt.remote))
	}
}

func TestFetch(t *testing.T) {
	remoteDir := t.TempDir()
	runDir := t.TempDir()
	remote := filepath.Join(remoteDir, "dmb-backup-20240301-101500.tgz")
	require.NoError(t, os.WriteFile(remote, []byte("archive bytes"), 0o600))

	got, err := Fetch(context.Background(), local.New(), "dmb", remote, runDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(runDir, "snapshot-20240301-101500.tgz"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))
	assert.NoFileExists(t, got+".part")
}

func TestFetchFailureLeavesNothing(t *testing.T) {
	runDir := t.TempDir()
	conn := &failingConnector{Connector: local.New(), downloadErr: errors.New("connection reset")}

	_, err := Fetch(context.Background(), conn, "dmb", "/tmp/dmb-backup-20240301-101500.tgz", runDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchMissingSource(t *testing.T) {
	runDir := t.TempDir()
	_, err := Fetch(context.Background(), local.New(), "dmb", filepath.Join(t.TempDir(), "nope.tgz"), runDir)
	require.Error(t, err)

	entries, _ := os.ReadDir(runDir)
	assert.Empty(t, entries)
}

func TestFetchRejectsEmptyFile(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "dmb-backup-20240301-101500.tgz")
	require.NoError(t, os.WriteFile(remote, nil, 0o600))
	runDir := t.TempDir()

	_, err := Fetch(context.Background(), local.New(), "dmb", remote, runDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	entries, _ := os.ReadDir(runDir)
	assert.Empty(t, entries)
}

func TestCleanupCommand(t *testing.T) {
	assert.Equal(t,
		"rm -rf '/tmp/dmb-backup-20240301-101500.tgz' '/tmp/dmb-backup-20240301-101500' || true",
		CleanupCommand("/tmp/dmb-backup-20240301-101500.tgz"))
}

func TestCleanupRemovesStaging(t *testing.T) {
	tmp := t.TempDir()
	staging := filepath.Join(tmp, "dmb-backup-20240301-101500")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "host"), 0o755))
	archive := staging + ".tgz"
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o600))

	Cleanup(context.Background(), local.New(), logger.Nop(), archive)

	assert.NoFileExists(t, archive)
	assert.NoDirExists(t, staging)
}

func TestCleanupFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	conn := &failingConnector{Connector: local.New(), execErr: errors.New("broken pipe")}

	Cleanup(context.Background(), conn, logger.FromZap(zap.New(core)), "/tmp/dmb-backup-20240301-101500.tgz")

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "broken pipe", warns[0].ContextMap()["error"])
}

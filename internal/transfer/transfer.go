// Package transfer moves the collector archive from the target to the run
// directory and tidies up the target afterwards.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/eugenetaranov/hostsnap/internal/collector"
	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/logger"
)

// LocalArchiveName maps the remote archive name to its local name:
// dmb-backup-<ts>.tgz becomes snapshot-<ts>.tgz.
func LocalArchiveName(project, remotePath string) string {
	return strings.Replace(path.Base(remotePath), project+"-backup-", "snapshot-", 1)
}

// Fetch downloads remotePath into runDir and returns the local path. The
// download goes to a ".part" file first so a failed transfer never leaves
// something that looks like a complete archive.
func Fetch(ctx context.Context, conn connector.Connector, project, remotePath, runDir string) (string, error) {
	local := filepath.Join(runDir, LocalArchiveName(project, remotePath))
	part := local + ".part"

	if err := conn.Download(ctx, remotePath, part); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("transfer %s: %w", remotePath, err)
	}

	info, err := os.Stat(part)
	if err != nil {
		return "", fmt.Errorf("transfer %s: %w", remotePath, err)
	}
	if info.Size() == 0 {
		os.Remove(part)
		return "", fmt.Errorf("transfer %s: received an empty file", remotePath)
	}

	if err := os.Rename(part, local); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("transfer %s: %w", remotePath, err)
	}

	return local, nil
}

// CleanupCommand removes the archive and its staging dir on the target.
func CleanupCommand(remotePath string) string {
	staging := strings.TrimSuffix(remotePath, collector.ArchiveExt)
	return fmt.Sprintf("rm -rf %s %s || true", connector.ShellQuote(remotePath), connector.ShellQuote(staging))
}

// Cleanup removes the remote temporary files. Failures are logged, never returned.
func Cleanup(ctx context.Context, conn connector.Connector, log logger.Logger, remotePath string) {
	res, err := conn.Execute(ctx, CleanupCommand(remotePath), nil, false)
	switch {
	case err != nil:
		log.Warn("remote cleanup failed", "path", remotePath, "error", err.Error())
	case res.ExitCode != 0:
		log.Warn("remote cleanup failed", "path", remotePath, "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
	default:
		log.Debug("remote cleanup done", "path", remotePath)
	}
}

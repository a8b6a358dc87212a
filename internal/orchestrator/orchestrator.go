// Package orchestrator runs the backup pipeline against one target.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eugenetaranov/hostsnap/internal/archive"
	"github.com/eugenetaranov/hostsnap/internal/checksum"
	"github.com/eugenetaranov/hostsnap/internal/collector"
	"github.com/eugenetaranov/hostsnap/internal/config"
	"github.com/eugenetaranov/hostsnap/internal/connector"
	"github.com/eugenetaranov/hostsnap/internal/logger"
	"github.com/eugenetaranov/hostsnap/internal/manifest"
	"github.com/eugenetaranov/hostsnap/internal/output"
	"github.com/eugenetaranov/hostsnap/internal/retention"
	"github.com/eugenetaranov/hostsnap/internal/runner"
	"github.com/eugenetaranov/hostsnap/internal/transfer"
	"github.com/eugenetaranov/hostsnap/pkg/facts"
)

// SnapshotDir is the extraction directory inside a run directory.
const SnapshotDir = "snapshot"

// Orchestrator runs backups.
type Orchestrator struct {
	// Output handles formatted output.
	Output *output.Output

	// Log receives structured diagnostics.
	Log logger.Logger

	// Catalogue overrides the collector steps. Nil loads the built-in
	// catalogue plus any configured extra steps.
	Catalogue *collector.Catalogue

	// Now returns the current time. Tests pin it to get fixed names.
	Now func() time.Time
}

// New creates a new orchestrator.
func New(out *output.Output, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		Output: out,
		Log:    log,
		Now:    time.Now,
	}
}

// hinter is implemented by connectors that know how to install their
// prerequisites.
type hinter interface {
	PrerequisiteHint() string
}

// Backup runs the full pipeline over conn. A strict failure stops the
// pipeline and returns the partially populated Run with the error; nothing
// written locally is rolled back.
func (o *Orchestrator) Backup(ctx context.Context, conn connector.Connector, cfg *config.Config) (*Run, error) {
	now := o.Now()
	run := &Run{
		Timestamp: now.Format(retention.TimestampLayout),
		Target:    conn.String(),
		Host:      cfg.Target(),
		User:      cfg.User,
		Port:      cfg.Port,
		StartTime: now,
	}
	defer func() { run.EndTime = time.Now() }()

	var hint string
	if h, ok := conn.(hinter); ok {
		hint = h.PrerequisiteHint()
	}
	if err := runner.LookPath(hint, conn.Prerequisites()...); err != nil {
		return run, err
	}

	catalogue, err := o.catalogue(cfg)
	if err != nil {
		return run, err
	}

	if err := os.MkdirAll(cfg.BackupRoot, 0o755); err != nil {
		return run, fmt.Errorf("failed to create backup root: %w", err)
	}
	dir := filepath.Join(cfg.BackupRoot, retention.RunDirName(cfg.Project, run.Timestamp))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return run, fmt.Errorf("failed to create run directory: %w", err)
	}
	run.Dir = dir

	o.Output.BackupStart(run.Target, run.Dir)
	o.Log.Info("backup started", "target", run.Target, "run_dir", run.Dir)

	o.Output.Stage("Connecting to %s", run.Target)
	if err := conn.Connect(ctx); err != nil {
		o.Output.StageResult("Connect", output.StatusFailed, err.Error())
		return run, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	o.Output.StageResult("Connect", output.StatusOK, "")

	o.gatherFacts(ctx, conn, run)

	params := collector.Params{
		Project:   cfg.Project,
		Timestamp: run.Timestamp,
		Root:      cfg.ProjectRoot,
		TempDir:   cfg.RemoteTmp,
	}
	script, err := collector.Render(catalogue, params)
	if err != nil {
		return run, err
	}

	o.Output.Stage("Running collector (%d steps)", len(catalogue.Steps))
	res, err := conn.Execute(ctx, collector.RemoteCommand, script, true)
	if err != nil {
		o.Output.StageResult("Collect", output.StatusFailed, err.Error())
		return run, fmt.Errorf("remote collector failed: %w", err)
	}
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		o.Output.Debug("collector stderr:\n%s", stderr)
	}

	remote, err := collector.ParseArchivePath(res.Stdout)
	if err != nil {
		o.Output.StageResult("Collect", output.StatusFailed, err.Error())
		return run, err
	}
	run.RemoteArchive = remote
	if remote != params.ArchivePath() {
		o.Output.Warn("collector reported %s, expected %s", remote, params.ArchivePath())
	}
	o.Output.StageResult("Collect", output.StatusOK, remote)

	o.Output.Stage("Transferring %s", remote)
	local, err := transfer.Fetch(ctx, conn, cfg.Project, remote, run.Dir)
	if err != nil {
		o.Output.StageResult("Transfer", output.StatusFailed, err.Error())
		return run, err
	}
	run.ArchivePath = local
	o.Output.StageResult("Transfer", output.StatusOK, local)

	transfer.Cleanup(ctx, conn, o.Log, remote)

	m := &manifest.Manifest{
		Host:      run.Host,
		User:      run.User,
		Port:      run.Port,
		Timestamp: run.Timestamp,
		Archive:   filepath.Base(local),
	}
	if run.ManifestPath, err = m.Write(run.Dir); err != nil {
		return run, err
	}

	o.Output.Stage("Computing checksum")
	if run.Digest, err = checksum.File(ctx, local); err != nil {
		return run, err
	}
	if _, err := checksum.Write(run.Dir, run.Digest, filepath.Base(local)); err != nil {
		return run, err
	}
	o.Output.StageResult("Checksum", output.StatusOK, run.Digest)

	if cfg.Extract {
		o.Output.Stage("Extracting archive")
		target := filepath.Join(run.Dir, SnapshotDir)
		if err := archive.Extract(ctx, local, target); err != nil {
			o.Output.StageResult("Extract", output.StatusFailed, err.Error())
			return run, err
		}
		run.ExtractDir = target
		o.Output.StageResult("Extract", output.StatusOK, target)
	}

	run.Retention = o.prune(cfg)

	run.EndTime = time.Now()
	o.Output.Summary(run)
	o.Log.Info("backup finished", "run_dir", run.Dir, "archive", run.ArchivePath, "sha256", run.Digest)

	return run, nil
}

// Rotate runs a retention pass on its own.
func (o *Orchestrator) Rotate(cfg *config.Config) (*retention.Result, error) {
	res, err := retention.Prune(cfg.BackupRoot, cfg.Project, cfg.Keep)
	if res == nil {
		return nil, err
	}
	for _, name := range res.Removed {
		o.Output.StageResult("removed "+name, output.StatusOK, "")
	}
	for _, name := range res.Failed {
		o.Output.StageResult("remove "+name, output.StatusFailed, "")
	}
	return res, err
}

// List prints the run directories under the backup root, newest first.
func (o *Orchestrator) List(cfg *config.Config) error {
	names, err := retention.List(cfg.BackupRoot, cfg.Project)
	if err != nil {
		return err
	}

	rows := make([]output.RunRow, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(cfg.BackupRoot, name)
		row := output.RunRow{Name: name, Archive: "-", Host: "-", Digest: "-"}

		if m, err := manifest.Read(dir); err == nil {
			row.Archive = m.Archive
		} else if !errors.Is(err, os.ErrNotExist) {
			o.Output.Warn("unreadable manifest in %s: %v", dir, err)
		}
		if f, err := facts.Read(dir); err == nil {
			row.Host = hostLabel(f)
		} else if !errors.Is(err, os.ErrNotExist) {
			o.Log.Warn("unreadable facts", "dir", dir, "error", err.Error())
		}
		if digest, _, err := checksum.Read(dir); err == nil {
			row.Digest = digest
		}
		rows = append(rows, row)
	}

	o.Output.RunList(rows)
	return nil
}

// hostLabel names the host a run was taken from, e.g. "web-1 (Debian GNU/Linux 12)".
func hostLabel(f *facts.Facts) string {
	name := f.OSName
	if name == "" {
		name = f.OSType
	}
	switch {
	case f.Hostname == "" && name == "":
		return "-"
	case name == "":
		return f.Hostname
	case f.Hostname == "":
		return name
	}
	return fmt.Sprintf("%s (%s)", f.Hostname, name)
}

func (o *Orchestrator) catalogue(cfg *config.Config) (*collector.Catalogue, error) {
	if o.Catalogue != nil {
		return o.Catalogue, nil
	}
	var extra []string
	if cfg.Collector.ExtraSteps != "" {
		extra = append(extra, cfg.Collector.ExtraSteps)
	}
	return collector.Load(extra...)
}

// gatherFacts is best effort; a failure only costs the facts file.
func (o *Orchestrator) gatherFacts(ctx context.Context, conn connector.Connector, run *Run) {
	f, err := facts.Gather(ctx, conn)
	if err != nil {
		o.Log.Warn("fact gathering failed", "error", err.Error())
		o.Output.StageResult("Facts", output.StatusWarn, err.Error())
		return
	}
	run.Facts = f

	if _, err := facts.Write(run.Dir, f); err != nil {
		o.Log.Warn("failed to write facts", "error", err.Error())
	}
	o.Output.StageResult("Facts", output.StatusOK, f.String())
}

// prune never fails the run; removal errors are reported as warnings.
func (o *Orchestrator) prune(cfg *config.Config) *retention.Result {
	if cfg.Keep == 0 {
		o.Output.StageResult("Retention", output.StatusSkipped, "keep=0")
		return nil
	}

	res, err := retention.Prune(cfg.BackupRoot, cfg.Project, cfg.Keep)
	if err != nil {
		o.Log.Warn("retention pass incomplete", "error", err.Error())
		o.Output.StageResult("Retention", output.StatusWarn, err.Error())
		return res
	}

	o.Output.StageResult("Retention", output.StatusOK, fmt.Sprintf("kept %d, removed %d", len(res.Kept), len(res.Removed)))
	return res
}

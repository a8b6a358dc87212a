package orchestrator

import (
	"time"

	"github.com/eugenetaranov/hostsnap/internal/retention"
	"github.com/eugenetaranov/hostsnap/pkg/facts"
)

// Run records what a backup produced. Fields are filled in pipeline order,
// so after a failure everything set so far is still valid.
type Run struct {
	// Timestamp is the run timestamp, also embedded in every name.
	Timestamp string

	// Target describes the connection, e.g. ssh://deploy@web-1:22.
	Target string

	Host string
	User string
	Port int

	// Dir is the local run directory.
	Dir string

	// RemoteArchive is the archive path reported by the collector.
	RemoteArchive string

	// ArchivePath is the transferred archive inside Dir.
	ArchivePath string

	// ManifestPath is the written manifest.
	ManifestPath string

	// Digest is the hex SHA-256 of ArchivePath.
	Digest string

	// Facts is nil when fact gathering failed.
	Facts *facts.Facts

	// ExtractDir is set when the archive was extracted.
	ExtractDir string

	// Retention is the result of the pruning pass.
	Retention *retention.Result

	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the total run time.
func (r *Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// GetDir returns the run directory (implements output.Report).
func (r *Run) GetDir() string { return r.Dir }

// GetArchive returns the local archive (implements output.Report).
func (r *Run) GetArchive() string { return r.ArchivePath }

// GetDigest returns the archive digest (implements output.Report).
func (r *Run) GetDigest() string { return r.Digest }

// GetExtractDir returns the extraction dir (implements output.Report).
func (r *Run) GetExtractDir() string { return r.ExtractDir }

// GetTarget returns the connection description (implements output.Report).
func (r *Run) GetTarget() string { return r.Target }

// GetRemoved returns the pruned run dirs (implements output.Report).
func (r *Run) GetRemoved() []string {
	if r.Retention == nil {
		return nil
	}
	return r.Retention.Removed
}

// GetDuration returns the duration (implements output.Report).
func (r *Run) GetDuration() time.Duration { return r.Duration() }

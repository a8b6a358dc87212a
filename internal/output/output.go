// Package output provides formatted terminal output for backup runs.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Stage statuses.
const (
	StatusOK      = "ok"
	StatusWarn    = "warn"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Report holds what a finished run produced.
type Report interface {
	GetDir() string
	GetArchive() string
	GetDigest() string
	GetExtractDir() string
	GetTarget() string
	GetRemoved() []string
	GetDuration() time.Duration
}

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// BackupStart prints the run banner.
func (o *Output) BackupStart(target, runDir string) {
	o.printf("\n%s %s\n", o.color(colorBold, "BACKUP"), target)
	o.printf("%s\n", o.color(colorGray, "run dir: "+runDir))
	if o.debug {
		o.printf("%s\n", strings.Repeat("-", 60))
	}
}

// Stage prints a "==>" progress line.
func (o *Output) Stage(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "==>"), fmt.Sprintf(format, args...))
}

// StageResult prints the outcome of a stage in a single line.
func (o *Output) StageResult(name, status, message string) {
	var indicator string
	var statusColor string

	switch {
	case strings.HasPrefix(status, StatusOK):
		indicator = "✓"
		statusColor = colorGreen
	case strings.HasPrefix(status, StatusWarn):
		indicator = "!"
		statusColor = colorYellow
	case strings.HasPrefix(status, StatusSkipped):
		indicator = "○"
		statusColor = colorCyan
	case strings.HasPrefix(status, StatusFailed):
		indicator = "✗"
		statusColor = colorRed
	default:
		indicator = "?"
		statusColor = colorGray
	}

	o.printf("  %s %s\n", o.color(statusColor, indicator), name)

	// warnings and failures always carry their reason
	if message != "" && (o.debug || statusColor == colorYellow || statusColor == colorRed) {
		o.printf("    %s %s\n", o.color(colorGray, "→"), message)
	}
}

// Summary prints where the run left its artifacts.
func (o *Output) Summary(r Report) {
	o.printf("\n%s %s %s\n", o.color(colorBold, "DONE"), r.GetTarget(),
		o.color(colorGray, fmt.Sprintf("(%.2fs)", r.GetDuration().Seconds())))

	o.field("run dir", r.GetDir())
	o.field("archive", r.GetArchive())
	o.field("sha256", r.GetDigest())
	if dir := r.GetExtractDir(); dir != "" {
		o.field("extracted", dir)
	}
	if removed := r.GetRemoved(); len(removed) > 0 {
		o.field("pruned", strings.Join(removed, ", "))
	}
}

// RunRow is one run directory as shown by the list command.
type RunRow struct {
	Name    string
	Archive string
	Host    string
	Digest  string
}

// RunList prints one line per run directory.
func (o *Output) RunList(rows []RunRow) {
	if len(rows) == 0 {
		o.printf("%s\n", o.color(colorGray, "no backups found"))
		return
	}
	for _, r := range rows {
		o.printf("%s  %s  %s  %s\n", o.color(colorBold, r.Name), r.Archive, r.Host, o.color(colorGray, r.Digest))
	}
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) field(name, value string) {
	o.printf("  %-10s %s\n", o.color(colorGray, name+":"), value)
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewOutput(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	if o == nil {
		t.Fatal("expected non-nil Output")
	}
	if o.w != &buf {
		t.Error("writer not set correctly")
	}
	if !o.useColor {
		t.Error("expected useColor to be true by default")
	}
}

func TestSetColor(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	o.SetColor(false)
	if o.useColor {
		t.Error("expected useColor to be false")
	}

	o.SetColor(true)
	if !o.useColor {
		t.Error("expected useColor to be true")
	}
}

func TestSetDebug(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	o.SetDebug(true)
	if !o.debug {
		t.Error("expected debug to be true")
	}

	o.SetDebug(false)
	if o.debug {
		t.Error("expected debug to be false")
	}
}

func TestColorOutput(t *testing.T) {
	t.Run("color enabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(true)

		result := o.color(colorGreen, "test")
		if !strings.Contains(result, "\033[32m") {
			t.Error("expected color code in output")
		}
		if !strings.Contains(result, "\033[0m") {
			t.Error("expected reset code in output")
		}
	})

	t.Run("color disabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)

		result := o.color(colorGreen, "test")
		if result != "test" {
			t.Errorf("expected plain 'test', got %q", result)
		}
	})
}

func TestStageResult(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		status  string
		debug   bool
		message string
		wantIn  []string
		wantOut []string
	}{
		{
			name:    "ok status",
			stage:   "Transfer",
			status:  StatusOK,
			message: "hidden",
			wantIn:  []string{"✓", "Transfer"},
			wantOut: []string{"hidden"},
		},
		{
			name:    "warn status shows reason",
			stage:   "Remote cleanup",
			status:  StatusWarn,
			message: "exit 1",
			wantIn:  []string{"!", "Remote cleanup", "→", "exit 1"},
		},
		{
			name:   "skipped status",
			stage:  "Extract",
			status: StatusSkipped,
			wantIn: []string{"○", "Extract"},
		},
		{
			name:    "failed status shows reason",
			stage:   "Collect",
			status:  StatusFailed,
			message: "exit status 2",
			wantIn:  []string{"✗", "Collect", "exit status 2"},
		},
		{
			name:    "debug with message",
			stage:   "Facts",
			status:  StatusOK,
			debug:   true,
			message: "web-1",
			wantIn:  []string{"✓", "Facts", "→", "web-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			o := New(&buf)
			o.SetColor(false)
			o.SetDebug(tt.debug)

			o.StageResult(tt.stage, tt.status, tt.message)

			output := buf.String()
			for _, want := range tt.wantIn {
				if !strings.Contains(output, want) {
					t.Errorf("expected output to contain %q, got %q", want, output)
				}
			}
			for _, unwanted := range tt.wantOut {
				if strings.Contains(output, unwanted) {
					t.Errorf("expected output not to contain %q, got %q", unwanted, output)
				}
			}
		})
	}
}

func TestStage(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Stage("collecting from %s", "deploy@web-1")

	if got := buf.String(); got != "==> collecting from deploy@web-1\n" {
		t.Errorf("unexpected stage line %q", got)
	}
}

func TestBackupStart(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.BackupStart("ssh://deploy@web-1:22", "/srv/_backups/dmb-20240301-101500")

	output := buf.String()
	for _, want := range []string{"BACKUP", "ssh://deploy@web-1:22", "dmb-20240301-101500"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %q", want, output)
		}
	}
}

func TestRunList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)

		o.RunList(nil)
		if !strings.Contains(buf.String(), "no backups found") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)

		o.RunList([]RunRow{
			{Name: "dmb-20240302-000000", Archive: "snapshot-20240302-000000.tgz", Host: "web-1 (Debian GNU/Linux 12)", Digest: "abc"},
			{Name: "dmb-20240301-000000", Archive: "snapshot-20240301-000000.tgz", Host: "-", Digest: "def"},
		})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
		}
		if !strings.HasPrefix(lines[0], "dmb-20240302-000000") {
			t.Errorf("unexpected first line %q", lines[0])
		}
		if !strings.Contains(lines[0], "web-1 (Debian GNU/Linux 12)") {
			t.Errorf("expected host column in %q", lines[0])
		}
	})
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Info("test %s %d", "message", 42)

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("expected INFO prefix")
	}
	if !strings.Contains(output, "test message 42") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestWarn(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Warn("warning %s", "here")

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Error("expected WARN prefix")
	}
	if !strings.Contains(output, "warning here") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Error("error: %v", "failed")

	output := buf.String()
	if !strings.Contains(output, "ERROR") {
		t.Error("expected ERROR prefix")
	}
	if !strings.Contains(output, "error: failed") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestDebugOutput(t *testing.T) {
	t.Run("debug enabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)
		o.SetDebug(true)

		o.Debug("debug %s", "info")

		output := buf.String()
		if !strings.Contains(output, "DEBUG") {
			t.Error("expected DEBUG prefix when debug enabled")
		}
	})

	t.Run("debug disabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)
		o.SetDebug(false)

		o.Debug("debug %s", "info")

		output := buf.String()
		if output != "" {
			t.Errorf("expected empty output when debug disabled, got %q", output)
		}
	})
}

// mockReport implements the Report interface for testing
type mockReport struct {
	dir, archive, digest, extract, target string
	removed                               []string
	duration                              time.Duration
}

func (m *mockReport) GetDir() string             { return m.dir }
func (m *mockReport) GetArchive() string         { return m.archive }
func (m *mockReport) GetDigest() string          { return m.digest }
func (m *mockReport) GetExtractDir() string      { return m.extract }
func (m *mockReport) GetTarget() string          { return m.target }
func (m *mockReport) GetRemoved() []string       { return m.removed }
func (m *mockReport) GetDuration() time.Duration { return m.duration }

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	report := &mockReport{
		dir:      "/srv/_backups/dmb-20240301-101500",
		archive:  "/srv/_backups/dmb-20240301-101500/snapshot-20240301-101500.tgz",
		digest:   "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		target:   "ssh://deploy@web-1:22",
		removed:  []string{"dmb-20240101-000000"},
		duration: 2500 * time.Millisecond,
	}

	o.Summary(report)

	output := buf.String()
	for _, want := range []string{"DONE", "2.50s", report.dir, report.archive, report.digest, "pruned", "dmb-20240101-000000"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %q", want, output)
		}
	}
	if strings.Contains(output, "extracted") {
		t.Error("extracted line should be omitted without extraction")
	}

	buf.Reset()
	report.extract = report.dir + "/snapshot"
	report.removed = nil
	o.Summary(report)
	if !strings.Contains(buf.String(), "extracted:") {
		t.Errorf("expected extracted line, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "pruned") {
		t.Error("pruned line should be omitted when nothing was removed")
	}
}

package collector

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/eugenetaranov/hostsnap/internal/connector"
)

// RemoteCommand is the command line the rendered script is piped into.
const RemoteCommand = "bash -s --"

// Params parameterise one rendering of the collector script.
type Params struct {
	// Project names the directory under Root and prefixes staging names.
	Project string

	// Timestamp is the run timestamp embedded in staging names.
	Timestamp string

	// Root holds the project tree and its bare repository. Default /opt.
	Root string

	// TempDir is the remote directory for staging. Default /tmp.
	TempDir string
}

func (p Params) withDefaults() Params {
	if p.Root == "" {
		p.Root = "/opt"
	}
	if p.TempDir == "" {
		p.TempDir = "/tmp"
	}
	return p
}

// ProjectDir is the remote project tree.
func (p Params) ProjectDir() string {
	return path.Join(p.withDefaults().Root, p.Project)
}

// RepoDir is the remote bare repository.
func (p Params) RepoDir() string {
	return p.ProjectDir() + ".git"
}

// StagingName is the base name of the staging dir, e.g. dmb-backup-20240115-093000.
func (p Params) StagingName() string {
	return p.Project + "-backup-" + p.Timestamp
}

// StagingDir is the remote directory the steps write into.
func (p Params) StagingDir() string {
	return path.Join(p.withDefaults().TempDir, p.StagingName())
}

// ArchivePath is where the script leaves the packed staging dir.
func (p Params) ArchivePath() string {
	return p.StagingDir() + ArchiveExt
}

// ArchiveExt is the extension of the produced archive.
const ArchiveExt = ".tgz"

type renderedStep struct {
	Label string
	When  string
	Body  string
}

var scriptTemplate = template.Must(template.New("collector").Funcs(template.FuncMap{
	"quote": connector.ShellQuote,
}).Parse(`set -euo pipefail

# stdout carries only the archive path; everything else goes to stderr
exec 3>&1 1>&2

TS={{quote .Timestamp}}
BACK={{quote .StagingDir}}
ARCH="${BACK}{{.Ext}}"

mkdir -p "$BACK"{{range .Dirs}} "$BACK/{{.}}"{{end}}
{{range .Steps}}
# {{.Label}}
{{if .When}}if {{.When}}; then
  {{.Body}}
fi
{{else}}{{.Body}}
{{end}}{{end}}
tar -C "$(dirname "$BACK")" -czf "$ARCH" "$(basename "$BACK")"
echo "$ARCH" >&3
`))

// Render materialises the collector script for params.
func Render(c *Catalogue, params Params) ([]byte, error) {
	params = params.withDefaults()
	if params.Project == "" || params.Timestamp == "" {
		return nil, fmt.Errorf("project and timestamp are required")
	}

	vars := map[string]string{
		"Project":    params.Project,
		"Root":       params.Root,
		"ProjectDir": params.ProjectDir(),
		"RepoDir":    params.RepoDir(),
		"Timestamp":  params.Timestamp,
	}

	steps := make([]renderedStep, 0, len(c.Steps))
	for _, s := range c.Steps {
		rs, err := renderStep(s, vars)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Label, err)
		}
		steps = append(steps, rs)
	}

	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, map[string]any{
		"Timestamp":  params.Timestamp,
		"StagingDir": params.StagingDir(),
		"Ext":        ArchiveExt,
		"Dirs":       c.OutputDirs(),
		"Steps":      steps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render collector script: %w", err)
	}

	return buf.Bytes(), nil
}

// renderStep expands templates and wraps the alternatives so the step can
// never fail the script.
func renderStep(s Step, vars map[string]string) (renderedStep, error) {
	var alts []string
	for _, r := range s.Run {
		cmd, err := expand(r, vars)
		if err != nil {
			return renderedStep{}, err
		}
		alts = append(alts, cmd)
		if s.Sudo {
			alts = append(alts, "sudo -n "+cmd)
		}
	}

	when, err := expand(s.When, vars)
	if err != nil {
		return renderedStep{}, err
	}

	body := "( " + strings.Join(alts, " || ") + " || true )"
	if s.Output != "" {
		body += fmt.Sprintf(` > "$BACK/%s" 2>&1`, path.Clean(s.Output))
	}

	return renderedStep{Label: s.Label, When: when, Body: body}, nil
}

func expand(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("step").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

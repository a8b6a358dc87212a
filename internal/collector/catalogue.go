// Package collector builds the script that gathers host state on the remote
// side and defines the contract for reading its result.
package collector

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var defaultSteps []byte

// Step is one best-effort gathering action.
type Step struct {
	// Label names the step in the script and in logs.
	Label string `yaml:"label"`

	// Output is the file under the staging dir receiving the step's stdout
	// and stderr. Empty means the command writes its own files.
	Output string `yaml:"output"`

	// Run lists alternatives tried in order until one succeeds.
	Run []string `yaml:"run"`

	// When is a shell condition; the step is skipped unless it succeeds.
	When string `yaml:"when"`

	// Sudo adds a non-interactive sudo retry after each alternative.
	Sudo bool `yaml:"sudo"`
}

// OutputFile returns the step's output path for display.
func (s Step) OutputFile() string {
	if s.Output == "" {
		return "(own files)"
	}
	return path.Clean(s.Output)
}

// Catalogue is the ordered set of steps and the staging layout they write to.
type Catalogue struct {
	Dirs  []string `yaml:"dirs"`
	Steps []Step   `yaml:"steps"`
}

// Default returns the built-in catalogue.
func Default() (*Catalogue, error) {
	c, err := Parse(defaultSteps)
	if err != nil {
		return nil, fmt.Errorf("built-in catalogue: %w", err)
	}
	return c, nil
}

// Load returns the built-in catalogue extended with the steps in the given
// files, in order.
func Load(extra ...string) (*Catalogue, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	for _, p := range extra {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read step file: %w", err)
		}
		more, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse step file %s: %w", p, err)
		}
		c.Dirs = append(c.Dirs, more.Dirs...)
		c.Steps = append(c.Steps, more.Steps...)
	}

	return c, nil
}

// Parse parses and validates a catalogue from YAML data.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalogue format: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every step can be rendered safely.
func (c *Catalogue) Validate() error {
	for _, d := range c.Dirs {
		if err := checkRelative(d); err != nil {
			return fmt.Errorf("dir %q: %w", d, err)
		}
	}

	for i, s := range c.Steps {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("step %d: 'label' is required", i+1)
		}
		if strings.ContainsAny(s.Label, "\r\n") {
			return fmt.Errorf("step %q: label must be a single line", s.Label)
		}
		if len(s.Run) == 0 {
			return fmt.Errorf("step %q: at least one 'run' command is required", s.Label)
		}
		for _, r := range s.Run {
			if strings.TrimSpace(r) == "" {
				return fmt.Errorf("step %q: empty 'run' command", s.Label)
			}
		}
		if s.Output != "" {
			if err := checkRelative(s.Output); err != nil {
				return fmt.Errorf("step %q: output: %w", s.Label, err)
			}
		}
	}

	return nil
}

// OutputDirs returns the staging subdirectories to create: the declared dirs
// followed by any output parent not already listed.
func (c *Catalogue) OutputDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(d string) {
		if d == "." || d == "" || seen[d] {
			return
		}
		seen[d] = true
		dirs = append(dirs, d)
	}

	for _, d := range c.Dirs {
		add(path.Clean(d))
	}
	for _, s := range c.Steps {
		if s.Output != "" {
			add(path.Dir(path.Clean(s.Output)))
		}
	}
	return dirs
}

func checkRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if path.IsAbs(p) {
		return fmt.Errorf("must be relative to the staging dir")
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("must stay inside the staging dir")
	}
	if strings.ContainsAny(p, "\"`$\\\n") {
		return fmt.Errorf("contains shell metacharacters")
	}
	return nil
}

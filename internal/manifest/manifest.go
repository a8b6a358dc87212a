// Package manifest writes and reads the per-run description file.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Filename is the manifest inside each run directory.
const Filename = "_manifest.txt"

// Manifest describes one run. Field order is fixed.
type Manifest struct {
	Host      string `yaml:"remote_host"`
	User      string `yaml:"remote_user"`
	Port      int    `yaml:"port"`
	Timestamp string `yaml:"timestamp"`
	Archive   string `yaml:"archive"`
}

// Bytes renders the manifest as five aligned "key: value" lines. The format
// is also valid YAML.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "remote_host: %s\n", m.Host)
	fmt.Fprintf(&buf, "remote_user: %s\n", m.User)
	fmt.Fprintf(&buf, "port:        %s\n", strconv.Itoa(m.Port))
	fmt.Fprintf(&buf, "timestamp:   %s\n", m.Timestamp)
	fmt.Fprintf(&buf, "archive:     %s\n", m.Archive)
	return buf.Bytes()
}

// Write creates the manifest in dir. An existing manifest is never replaced.
func (m *Manifest) Write(dir string) (string, error) {
	p := filepath.Join(dir, Filename)

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create manifest %q: %w", p, err)
	}

	if _, err := f.Write(m.Bytes()); err != nil {
		f.Close()
		return "", fmt.Errorf("write manifest %q: %w", p, err)
	}

	return p, f.Close()
}

// Read loads the manifest from dir.
func Read(dir string) (*Manifest, error) {
	p := filepath.Join(dir, Filename)

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", p, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %q: %w", p, err)
	}
	return &m, nil
}

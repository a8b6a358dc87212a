// Package facts gathers system information from backup targets.
package facts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/hostsnap/internal/connector"
)

// Filename is the per-run facts file.
const Filename = "_facts.yaml"

// gatherCommand prints one key=value pair per line followed by /etc/os-release.
const gatherCommand = `printf 'hostname=%s\n' "$(hostname 2>/dev/null)"; ` +
	`printf 'user=%s\n' "$(id -un 2>/dev/null)"; ` +
	`printf 'os_type=%s\n' "$(uname -s 2>/dev/null)"; ` +
	`printf 'kernel=%s\n' "$(uname -r 2>/dev/null)"; ` +
	`printf 'machine=%s\n' "$(uname -m 2>/dev/null)"; ` +
	`cat /etc/os-release 2>/dev/null; true`

// Facts describes the target at the time of the run.
type Facts struct {
	Hostname            string `yaml:"hostname"`
	User                string `yaml:"user"`
	OSType              string `yaml:"os_type"`
	OSFamily            string `yaml:"os_family,omitempty"`
	OSName              string `yaml:"os_name,omitempty"`
	Distribution        string `yaml:"distribution,omitempty"`
	DistributionVersion string `yaml:"distribution_version,omitempty"`
	PkgManager          string `yaml:"pkg_manager,omitempty"`
	Kernel              string `yaml:"kernel"`
	Architecture        string `yaml:"architecture"`
	Arch                string `yaml:"arch"`
}

// Gather collects facts from the target with a single command.
func Gather(ctx context.Context, conn connector.Connector) (*Facts, error) {
	result, err := conn.Execute(ctx, gatherCommand, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to gather facts: %w", err)
	}
	return Parse(result.Stdout), nil
}

// Parse builds Facts from the output of the gather command.
func Parse(out string) *Facts {
	kv := parseKeyValues(out)

	f := &Facts{
		Hostname:     kv["hostname"],
		User:         kv["user"],
		OSType:       kv["os_type"],
		Kernel:       kv["kernel"],
		Architecture: kv["machine"],
		Arch:         normalizeArch(kv["machine"]),
	}

	switch f.OSType {
	case "Darwin":
		f.OSFamily = "Darwin"
		f.PkgManager = "brew"
	case "Linux":
		f.OSFamily = "Linux"
		f.Distribution = kv["ID"]
		f.DistributionVersion = kv["VERSION_ID"]
		f.OSName = kv["PRETTY_NAME"]

		switch f.Distribution {
		case "ubuntu", "debian", "linuxmint", "pop":
			f.PkgManager = "apt"
			f.OSFamily = "Debian"
		case "fedora", "rhel", "centos", "rocky", "almalinux":
			f.PkgManager = "dnf"
			f.OSFamily = "RedHat"
		case "arch", "manjaro":
			f.PkgManager = "pacman"
			f.OSFamily = "Arch"
		case "alpine":
			f.PkgManager = "apk"
			f.OSFamily = "Alpine"
		case "opensuse", "sles":
			f.PkgManager = "zypper"
			f.OSFamily = "Suse"
		}
	}

	return f
}

// Write stores the facts as YAML in dir.
func Write(dir string, f *Facts) (string, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode facts: %w", err)
	}

	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Read loads facts written by Write.
func Read(dir string) (*Facts, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, err
	}

	var f Facts
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", Filename, err)
	}
	return &f, nil
}

// String is a short one-line description.
func (f *Facts) String() string {
	name := f.OSName
	if name == "" {
		name = f.OSType
	}
	return fmt.Sprintf("%s (%s, %s, kernel %s)", f.Hostname, name, f.Arch, f.Kernel)
}

// parseKeyValues parses key=value lines, including /etc/os-release quoting.
// The first occurrence of a key wins.
func parseKeyValues(content string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "="); idx > 0 {
			key := line[:idx]
			if _, seen := result[key]; seen {
				continue
			}
			result[key] = strings.Trim(line[idx+1:], "\"'")
		}
	}
	return result
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	case "armv7l":
		return "arm"
	default:
		return arch
	}
}

package collector

import (
	"fmt"
	"path"
	"strings"
)

// ProtocolError is returned when the collector finished but its stdout does
// not name exactly one archive by absolute path.
type ProtocolError struct {
	Reason string
	Output string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected collector output (%s):\n%s", e.Reason, e.Output)
}

// ParseArchivePath extracts the archive path from the collector's stdout.
func ParseArchivePath(stdout string) (string, error) {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return "", &ProtocolError{Reason: "empty output", Output: stdout}
	}

	last := lines[len(lines)-1]
	switch {
	case !strings.HasPrefix(last, "/"):
		return "", &ProtocolError{Reason: "last line is not an absolute path", Output: stdout}
	case len(lines) > 1:
		return "", &ProtocolError{Reason: fmt.Sprintf("%d lines, want 1", len(lines)), Output: stdout}
	case path.Clean(last) != last:
		return "", &ProtocolError{Reason: "path is not clean", Output: stdout}
	case !strings.HasSuffix(last, ArchiveExt) || path.Base(last) == ArchiveExt:
		return "", &ProtocolError{Reason: "path does not name a " + ArchiveExt + " archive", Output: stdout}
	}

	return last, nil
}

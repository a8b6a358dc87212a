// Package retention prunes old run directories under the backup root.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"go.uber.org/multierr"
)

// TimestampLayout is the fixed-width run timestamp. Lexicographic order of
// formatted values equals chronological order.
const TimestampLayout = "20060102-150405"

// RunDirName returns the run directory name for prefix and timestamp.
func RunDirName(prefix, ts string) string {
	return prefix + "-" + ts
}

// Result reports the outcome of a retention pass.
type Result struct {
	// Kept lists retained run directories, newest first.
	Kept []string

	// Removed lists deleted run directories, newest first.
	Removed []string

	// Failed lists run directories that could not be removed.
	Failed []string
}

// List returns the run directories under root, newest first. A missing root
// yields an empty list.
func List(root, prefix string) ([]string, error) {
	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + `-\d{8}-\d{6}$`)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && pattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Prune keeps the newest keep run directories under root and removes the
// rest. keep == 0 keeps everything. A failed removal does not stop the pass;
// all failures are returned combined.
func Prune(root, prefix string, keep int) (*Result, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	names, err := List(root, prefix)
	if err != nil {
		return nil, err
	}

	result := &Result{Kept: names}
	if keep == 0 || len(names) <= keep {
		return result, nil
	}

	result.Kept = names[:keep]

	var errs error
	for _, name := range names[keep:] {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			result.Failed = append(result.Failed, name)
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		result.Removed = append(result.Removed, name)
	}

	return result, errs
}

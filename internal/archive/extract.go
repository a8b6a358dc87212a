// Package archive unpacks transferred snapshots for browsing.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks the gzip-compressed tar at src into dest, which is created
// if needed. Entries that would land outside dest, directly or through a
// symlink already on disk, are rejected.
func Extract(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dest, err)
	}

	// Directory times are restored last; writing children bumps them.
	type dirTime struct {
		path  string
		mtime time.Time
	}
	var dirs []dirTime

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
		default:
			// devices, fifos and the like have no place in a snapshot
			continue
		}

		target, err := resolve(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
			if err := os.Chmod(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
			dirs = append(dirs, dirTime{target, hdr.ModTime})

		case tar.TypeReg:
			if err := writeFile(target, tr, hdr); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := checkLinkTarget(root, filepath.Dir(target), hdr.Linkname); err != nil {
				return fmt.Errorf("symlink %s points outside the archive: %w", hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}

		case tar.TypeLink:
			src, err := resolve(root, hdr.Linkname)
			if err != nil {
				return err
			}
			info, err := os.Lstat(src)
			if err != nil {
				return fmt.Errorf("hard link %s: %w", hdr.Name, err)
			}
			if !info.Mode().IsRegular() {
				return fmt.Errorf("hard link %s must point at a regular file", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return fmt.Errorf("failed to create hard link %s: %w", target, err)
			}
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chtimes(dirs[i].path, dirs[i].mtime, dirs[i].mtime); err != nil {
			return fmt.Errorf("failed to set times on %s: %w", dirs[i].path, err)
		}
	}

	return nil
}

func writeFile(target string, r io.Reader, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", target, err)
	}

	// O_EXCL refuses to follow a symlink left at target.
	os.Remove(target)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
}

// resolve maps the entry name onto disk under root. The parent directory is
// resolved through any symlinks already extracted, so the returned path is
// the real location the entry will be written to.
func resolve(root, name string) (string, error) {
	target, err := within(root, name)
	if err != nil {
		return "", err
	}
	if target == root {
		return target, nil
	}

	parent, err := realPath(filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", name, err)
	}
	if !inside(root, parent) {
		return "", fmt.Errorf("archive entry %q escapes the destination through a symlink", name)
	}
	return filepath.Join(parent, filepath.Base(target)), nil
}

// checkLinkTarget verifies that a symlink created in dir with the given
// target resolves under root.
func checkLinkTarget(root, dir, link string) error {
	if !filepath.IsAbs(link) {
		// ".." after a named component is resolved by the kernel against the
		// component's real location, which Clean cannot see.
		named := false
		for _, part := range strings.Split(filepath.ToSlash(link), "/") {
			switch part {
			case "", ".":
			case "..":
				if named {
					return fmt.Errorf("%q climbs out of a subdirectory", link)
				}
			default:
				named = true
			}
		}
		link = filepath.Join(dir, link)
	}

	resolved, err := realPath(filepath.Clean(link))
	if err != nil {
		return err
	}
	if !inside(root, resolved) {
		return fmt.Errorf("%q resolves to %s", link, resolved)
	}
	return nil
}

// realPath resolves symlinks in the longest existing prefix of p and appends
// the missing remainder unchanged.
func realPath(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// within joins name under root and rejects paths that escape it lexically.
func within(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !inside(root, target) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

func inside(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

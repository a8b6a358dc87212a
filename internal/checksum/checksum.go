// Package checksum fingerprints transferred archives.
package checksum

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Filename is the per-run checksum record.
const Filename = "_sha256.txt"

// chunkSize bounds memory use while hashing.
const chunkSize = 1024 * 1024

// File returns the hex SHA-256 digest of the file at path, read in chunks.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := f.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Write records "<digest>  <name>" in dir. The record is written once.
func Write(dir, digest, name string) (string, error) {
	p := filepath.Join(dir, Filename)

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create checksum file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%s  %s\n", digest, name); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}

	return p, f.Close()
}

// Read returns the digest and file name recorded in dir.
func Read(dir string) (digest, name string, err error) {
	f, err := os.Open(filepath.Join(dir, Filename))
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}

	digest, name, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "  ")
	if !ok || digest == "" || name == "" {
		return "", "", fmt.Errorf("malformed checksum record %q", line)
	}
	return digest, name, nil
}

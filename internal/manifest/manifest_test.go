package manifest

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFieldOrder(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Host:      "203.0.113.5",
		User:      "deploy",
		Port:      22,
		Timestamp: "20240115-093000",
		Archive:   "snapshot-20240115-093000.tgz",
	}

	p, err := m.Write(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		"remote_host: 203.0.113.5",
		"remote_user: deploy",
		"port:        22",
		"timestamp:   20240115-093000",
		"archive:     snapshot-20240115-093000.tgz",
	}, lines)
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Host: "vps.example.com", User: "ops", Port: 2222, Timestamp: "20240101-000000", Archive: "snapshot-20240101-000000.tgz"}

	_, err := m.Write(dir)
	require.NoError(t, err)

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestWriteOnce(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Host: "h", User: "u", Port: 22, Timestamp: "20240101-000000", Archive: "a.tgz"}

	_, err := m.Write(dir)
	require.NoError(t, err)

	_, err = m.Write(dir)
	assert.Error(t, err)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.Error(t, err)
}

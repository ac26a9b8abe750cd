package peerlist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-bully/peerguard/internal/peerlist"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesWellFormedFile(t *testing.T) {
	path := writeFile(t, "1;127.0.0.1;9001\n2;127.0.0.1;9002\n")

	peers, err := peerlist.Load(path)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, uint64(1), peers[0].ID)
	assert.Equal(t, "127.0.0.1", peers[0].Host)
	assert.Equal(t, uint16(9001), peers[0].Port)
}

// TestLoadRejectsDuplicateID asserts that two records sharing an
// identifier abort the load before any listener is bound.
func TestLoadRejectsDuplicateID(t *testing.T) {
	path := writeFile(t, "5;127.0.0.1;9001\n5;127.0.0.1;9002\n")

	_, err := peerlist.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicatePort(t *testing.T) {
	path := writeFile(t, "1;127.0.0.1;9001\n2;127.0.0.1;9001\n")

	_, err := peerlist.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeFile(t, "1;127.0.0.1\n")

	_, err := peerlist.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNonNumericID(t *testing.T) {
	path := writeFile(t, "abc;127.0.0.1;9001\n")

	_, err := peerlist.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := peerlist.Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

package testutil

import (
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTempDir creates a temporary directory and returns its path along with a cleanup function
func CreateTempDir(t *testing.T, prefix string) (string, func()) {
	tmpDir, err := os.MkdirTemp("", prefix)
	require.NoError(t, err)

	cleanup := func() {
		os.RemoveAll(tmpDir)
	}

	return tmpDir, cleanup
}

// RandomBytes returns a deterministic pseudo-random payload for codec tests
func RandomBytes(t *testing.T, size int) []byte {
	r := rand.New(rand.NewSource(int64(size)))
	data := make([]byte, size)
	_, err := r.Read(data)
	require.NoError(t, err)
	return data
}

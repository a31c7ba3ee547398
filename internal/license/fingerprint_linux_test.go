package license

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFingerprinter(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	second := filepath.Join(dir, "machine-id")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("0123456789abcdef\n"), 0o644))

	f := fileFingerprinter{paths: []string{filepath.Join(dir, "missing"), empty, second}}
	id, err := f.MachineID()
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", id)

	_, err = fileFingerprinter{paths: []string{filepath.Join(dir, "missing")}}.MachineID()
	assert.Error(t, err)
}

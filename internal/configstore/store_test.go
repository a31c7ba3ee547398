package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/modes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "OpenBio", "config.toml"), zap.NewNop())
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.Exists())
	assert.Equal(t, domain.DefaultDeploymentConfig(), store.Load())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	configs := []domain.DeploymentConfig{
		{Mode: modes.ModeUnconfigured},
		{Mode: modes.ModeLocal, ServerPort: 3000},
		{Mode: modes.ModeHub, LabName: "Smith Lab", ServerPort: 3100},
		{Mode: modes.ModeSpoke, APIURL: "http://10.0.0.5:3000"},
		{Mode: modes.ModeEnterprise, APIURL: "https://openbio.example.org", LabName: "HQ"},
	}

	for _, cfg := range configs {
		t.Run(cfg.Mode.String(), func(t *testing.T) {
			store := newTestStore(t)

			require.NoError(t, store.Save(cfg))
			assert.True(t, store.Exists())
			assert.Equal(t, cfg, store.Load())
		})
	}
}

func TestStore_SaveWritesExpectedKeys(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(domain.DeploymentConfig{
		Mode:       modes.ModeHub,
		LabName:    "Smith Lab",
		ServerPort: 3000,
	}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `mode = "hub"`)
	assert.Contains(t, content, `labName = "Smith Lab"`)
	assert.Contains(t, content, `serverPort = 3000`)
	assert.NotContains(t, content, "apiUrl")

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestStore_LoadMalformedFileResets(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("mode = [not toml"), 0644))

	assert.True(t, store.Exists())
	assert.Equal(t, domain.DefaultDeploymentConfig(), store.Load())
}

func TestStore_LoadUnknownModeResets(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("mode = \"galaxy\"\nserverPort = 1\n"), 0644))

	assert.Equal(t, domain.DefaultDeploymentConfig(), store.Load())
}

func TestStore_LoadHandWrittenFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	content := "mode = \"spoke\"\napiUrl = \"http://192.168.1.4:3000\"\nserverPort = 3000\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0644))

	cfg := store.Load()
	assert.Equal(t, modes.ModeSpoke, cfg.Mode)
	assert.Equal(t, "http://192.168.1.4:3000", cfg.APIURL)
	assert.Equal(t, uint16(3000), cfg.ServerPort)
}

func TestStore_SaveFailsWhenDirectoryIsAFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "OpenBio")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	store := New(filepath.Join(blocker, "config.toml"), zap.NewNop())
	err := store.Save(domain.DeploymentConfig{Mode: modes.ModeLocal, ServerPort: 3000})
	assert.Error(t, err)
}

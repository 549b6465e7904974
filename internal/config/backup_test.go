package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackupUserConfigNoneExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	require.Empty(t, backupPath)
}

func TestBackupAndRestoreUserConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	original := "version: 1\nembeddings:\n  provider: ollama\n"
	require.NoError(t, os.WriteFile(configPath, []byte(original), 0o644))

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	require.Equal(t, original, string(data))

	require.NoError(t, os.WriteFile(configPath, []byte("version: 2\n"), 0o644))
	require.NoError(t, RestoreUserConfig(backupPath))

	restored, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, original, string(restored))
}

func TestBackupRotatesOldBackups(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0o644))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupUserConfig()
		require.NoError(t, err)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	require.LessOrEqual(t, len(backups), MaxBackups)
}

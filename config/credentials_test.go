package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architectureofthings/archi-modelrepository-plugin/config"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

func TestOpenCredentialsMissingFile(t *testing.T) {
	creds, err := config.OpenCredentials(filepath.Join(t.TempDir(), "credentials.yaml"))
	require.NoError(t, err)

	assert.Empty(t, creds.Remotes())

	_, ok := creds.Lookup("https://git.example.com/models/crm.git")
	assert.False(t, ok)
}

func TestCredentialsSetSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")

	creds, err := config.OpenCredentials(path)
	require.NoError(t, err)

	creds.Set("https://git.example.com/models/crm.git", store.Credentials{
		Username: "alice",
		Password: "token-a",
	})
	creds.Set("https://github.com/org/reference.git", store.Credentials{
		Username: "alice",
		Password: "token-b",
	})
	require.NoError(t, creds.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := config.OpenCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://git.example.com/models/crm.git",
		"https://github.com/org/reference.git",
	}, reloaded.Remotes())

	got, ok := reloaded.Lookup("https://git.example.com/models/crm.git")
	require.True(t, ok)
	assert.Equal(t, store.Credentials{Username: "alice", Password: "token-a"}, got)
}

func TestCredentialsDelete(t *testing.T) {
	creds, err := config.OpenCredentials(filepath.Join(t.TempDir(), "credentials.yaml"))
	require.NoError(t, err)

	creds.Set("https://git.example.com/models/crm.git", store.Credentials{Username: "alice"})

	assert.True(t, creds.Delete("https://git.example.com/models/crm.git"))
	assert.False(t, creds.Delete("https://git.example.com/models/crm.git"))
	assert.Empty(t, creds.Remotes())
}

func TestCredentialsCollaboratorResolvesKnownRemotesOnly(t *testing.T) {
	ctx := context.Background()

	creds, err := config.OpenCredentials(filepath.Join(t.TempDir(), "credentials.yaml"))
	require.NoError(t, err)

	got, err := creds.Credentials(ctx, "https://git.example.com/models/crm.git")
	require.NoError(t, err)
	assert.Nil(t, got)

	creds.Set("https://git.example.com/models/crm.git", store.Credentials{
		Username: "alice",
		Password: "token-a",
	})

	got, err = creds.Credentials(ctx, "https://git.example.com/models/crm.git")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "token-a", got.Password)
}

func TestOpenCredentialsRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote: [unclosed"), 0o600))

	_, err := config.OpenCredentials(path)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

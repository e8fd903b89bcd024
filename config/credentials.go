package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// CredentialsStore persists usernames and passwords keyed by remote URL in
// a YAML file readable by the owner only. It satisfies the refresh
// workflow's credentials collaborator: lookups are non-interactive, and a
// remote with no stored entry resolves to nil so the workflow can abort
// quietly instead of prompting.
type CredentialsStore struct {
	path    string
	entries map[string]credentialEntry
}

type credentialEntry struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OpenCredentials loads the credentials store at path. A missing file
// yields an empty store; Save creates it.
func OpenCredentials(path string) (*CredentialsStore, error) {
	s := &CredentialsStore{
		path:    path,
		entries: make(map[string]credentialEntry),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, WrapErrorf(err, "read credentials %q", path)
	}

	if err := yaml.Unmarshal(data, &s.entries); err != nil {
		return nil, WrapErrorf(ErrInvalidConfig, "parse %q: %v", path, err)
	}

	return s, nil
}

// Path returns the file this store reads from and writes to.
func (s *CredentialsStore) Path() string {
	return s.path
}

// Lookup returns the stored credentials for a remote URL.
func (s *CredentialsStore) Lookup(remoteURL string) (store.Credentials, bool) {
	e, ok := s.entries[remoteURL]
	if !ok {
		return store.Credentials{}, false
	}

	return store.Credentials{Username: e.Username, Password: e.Password}, true
}

// Set stores credentials for a remote URL, replacing any previous entry.
// The change is in memory until Save is called.
func (s *CredentialsStore) Set(remoteURL string, creds store.Credentials) {
	s.entries[remoteURL] = credentialEntry{
		Username: creds.Username,
		Password: creds.Password,
	}
}

// Delete removes the entry for a remote URL and reports whether one existed.
func (s *CredentialsStore) Delete(remoteURL string) bool {
	_, ok := s.entries[remoteURL]
	delete(s.entries, remoteURL)

	return ok
}

// Remotes returns the remote URLs with stored credentials, sorted.
func (s *CredentialsStore) Remotes() []string {
	urls := make([]string, 0, len(s.entries))
	for url := range s.entries {
		urls = append(urls, url)
	}

	sort.Strings(urls)

	return urls
}

// Save writes the store back to its file with owner-only permissions,
// creating parent directories as needed.
func (s *CredentialsStore) Save() error {
	data, err := yaml.Marshal(s.entries)
	if err != nil {
		return WrapError(err, "encode credentials")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapErrorf(err, "create %q", dir)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return WrapErrorf(err, "write credentials %q", s.path)
	}

	return nil
}

// Credentials implements the refresh workflow's credentials collaborator.
// Unknown remotes resolve to nil rather than an error, which the workflow
// treats as a declined authentication.
func (s *CredentialsStore) Credentials(_ context.Context, remoteURL string) (*store.Credentials, error) {
	creds, ok := s.Lookup(remoteURL)
	if !ok {
		return nil, nil
	}

	return &creds, nil
}

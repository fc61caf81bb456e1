package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the on-disk set of named server profiles.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is one server profile. URL is the gRPC address.
type Remote struct {
	URL     string `toml:"url"`
	HTTPURL string `toml:"http_url,omitempty"`
	Token   string `toml:"token,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
}

func (c *RemotesConfig) lookup(name string) (Remote, error) {
	r, ok := c.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

// remoteConfigPath returns ~/.local/state/hotstore/remotes.toml, creating
// the directory owner-only.
func remoteConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "hotstore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

func loadRemotesConfig() (RemotesConfig, error) {
	cfg := RemotesConfig{}
	path, err := remoteConfigPath()
	if err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return RemotesConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// updateRemotes loads the profiles, applies fn and saves the result. Nothing
// is written when fn fails.
func updateRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

var activeRemote = sync.OnceValues(func() (Remote, bool) {
	cfg, err := loadRemotesConfig()
	if err != nil || cfg.Active == "" {
		return Remote{}, false
	}
	r, ok := cfg.Remotes[cfg.Active]
	return r, ok
})

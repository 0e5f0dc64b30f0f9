// Package vostcfg loads the optional per-repository vost.toml
// configuration file: default author/committer signature, lock and
// CAS-retry tuning, and the default notes namespace. Its absence is not
// an error; Default() is returned instead.
package vostcfg

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the parsed shape of vost.toml. Every field has a sane
// zero-value fallback applied by Default()/normalize() so a partially
// filled file still behaves.
type Config struct {
	Author struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"author"`

	Lock struct {
		MaxAttempts   int `toml:"max_attempts"`
		MinBackoffMs  int `toml:"min_backoff_ms"`
		MaxBackoffMs  int `toml:"max_backoff_ms"`
	} `toml:"lock"`

	CAS struct {
		MaxRetries   int `toml:"max_retries"`
		MaxBackoffMs int `toml:"max_backoff_ms"`
	} `toml:"cas"`

	Notes struct {
		DefaultNamespace string `toml:"default_namespace"`
	} `toml:"notes"`
}

// Default returns the built-in configuration used when no vost.toml is
// present, matching the bounds spec.md §5 gives for lock retry (10-30ms
// jitter, bounded e.g. 100 attempts) and CAS retry (min(10*2^attempt,200)ms,
// 5 retries).
func Default() *Config {
	c := &Config{}
	c.Author.Name = "vost"
	c.Author.Email = "vost@localhost"
	c.Lock.MaxAttempts = 100
	c.Lock.MinBackoffMs = 10
	c.Lock.MaxBackoffMs = 30
	c.CAS.MaxRetries = 5
	c.CAS.MaxBackoffMs = 200
	c.Notes.DefaultNamespace = "commits"
	return c
}

// Load reads vost.toml from repoPath (the bare repository directory).
// A missing file is not an error: Default() is returned. A malformed
// file is an error.
func Load(repoPath string) (*Config, error) {
	c := Default()
	path := filepath.Join(repoPath, "vost.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "vostcfg: reading %s", path)
	}
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, errors.Wrapf(err, "vostcfg: parsing %s", path)
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	d := Default()
	if c.Author.Name == "" {
		c.Author.Name = d.Author.Name
	}
	if c.Author.Email == "" {
		c.Author.Email = d.Author.Email
	}
	if c.Lock.MaxAttempts <= 0 {
		c.Lock.MaxAttempts = d.Lock.MaxAttempts
	}
	if c.Lock.MinBackoffMs <= 0 {
		c.Lock.MinBackoffMs = d.Lock.MinBackoffMs
	}
	if c.Lock.MaxBackoffMs <= 0 {
		c.Lock.MaxBackoffMs = d.Lock.MaxBackoffMs
	}
	if c.CAS.MaxRetries <= 0 {
		c.CAS.MaxRetries = d.CAS.MaxRetries
	}
	if c.CAS.MaxBackoffMs <= 0 {
		c.CAS.MaxBackoffMs = d.CAS.MaxBackoffMs
	}
	if c.Notes.DefaultNamespace == "" {
		c.Notes.DefaultNamespace = d.Notes.DefaultNamespace
	}
}

// LockMinBackoff/LockMaxBackoff return the configured jitter bounds as
// time.Duration, handy at replock call sites.
func (c *Config) LockMinBackoff() time.Duration {
	return time.Duration(c.Lock.MinBackoffMs) * time.Millisecond
}

func (c *Config) LockMaxBackoff() time.Duration {
	return time.Duration(c.Lock.MaxBackoffMs) * time.Millisecond
}

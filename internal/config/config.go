// Package config loads the hosts configuration file.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slok/remoterun/internal/model"
)

// Host is a remote host the commands can run on.
type Host struct {
	Name           string `yaml:"name"`
	Addr           string `yaml:"addr"`
	Port           int    `yaml:"port,omitempty"`
	User           string `yaml:"user"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
}

// Config mirrors the YAML configuration shape.
type Config struct {
	Hosts []Host `yaml:"hosts"`
}

// Load reads and validates a hosts configuration.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode configuration: %w", err)
	}

	seen := map[string]struct{}{}
	for i := range cfg.Hosts {
		h := &cfg.Hosts[i]
		if h.Name == "" {
			return nil, fmt.Errorf("host %d: name is required: %w", i, model.ErrNotValid)
		}
		if h.Addr == "" {
			return nil, fmt.Errorf("host %q: addr is required: %w", h.Name, model.ErrNotValid)
		}
		if _, ok := seen[h.Name]; ok {
			return nil, fmt.Errorf("host %q is declared twice: %w", h.Name, model.ErrNotValid)
		}
		seen[h.Name] = struct{}{}
		if h.Port == 0 {
			h.Port = 22
		}
	}

	return &cfg, nil
}

// LoadFile loads a hosts configuration from a file path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open configuration file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Host returns the host with the given name.
func (c *Config) Host(name string) (*Host, error) {
	for i := range c.Hosts {
		if c.Hosts[i].Name == name {
			return &c.Hosts[i], nil
		}
	}
	return nil, fmt.Errorf("host %q: %w", name, model.ErrNotFound)
}

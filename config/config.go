package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// MIDIConfig names the OS ports used by the standalone host
type MIDIConfig struct {
	InputPort  string `json:"inputPort,omitempty"`
	OutputPort string `json:"outputPort,omitempty"` // empty: host buffer only
}

// NetworkConfig selects where pattern payloads travel
type NetworkConfig struct {
	Port uint8  `json:"port"` // UDP port index, see transport.Port
	Peer string `json:"peer,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	SampleRate int           `json:"sampleRate"`
	BlockSize  int           `json:"blockSize"`
	LogLevel   string        `json:"logLevel,omitempty"`
	DebugLog   bool          `json:"debugLog,omitempty"`
	DebugAddr  string        `json:"debugAddr,omitempty"`
	MIDI       MIDIConfig    `json:"midi"`
	Network    NetworkConfig `json:"network"`
	Params     Params        `json:"params"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SampleRate: 48000,
		BlockSize:  256,
		LogLevel:   "info",
		Network:    NetworkConfig{Peer: "127.0.0.1"},
		Params:     DefaultParams(),
	}
}

// Validate rejects settings the host cannot run with
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fault.Wrap(fault.New("sample rate must be positive"), ftag.With(ftag.InvalidArgument))
	}
	if c.BlockSize <= 0 || c.BlockSize > 1<<16-1 {
		return fault.Wrap(fault.New("block size out of range"), ftag.With(ftag.InvalidArgument))
	}
	return c.Params.Validate()
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midifx"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DebugLogPath returns where the file diagnostic sink writes
func DebugLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "debug.log"), nil
}

// Load reads the config from disk, or returns defaults if not found.
// Fields missing from the file keep their defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fault.Wrap(err, fmsg.With("read config"))
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(err, fmsg.With("parse "+path), ftag.With(ftag.InvalidArgument))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(err, fmsg.With(path))
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"))
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fault.Wrap(err)
	}

	return fault.Wrap(os.WriteFile(path, data, 0644), fmsg.With("write config"))
}

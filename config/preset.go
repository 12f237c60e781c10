package config

import (
	"os"
	"path/filepath"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// PresetPath returns where the parameter snapshot is kept
func PresetPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "preset.bin"), nil
}

// SavePreset writes p as a snapshot, the way a plugin host stores its
// preset chunk.
func SavePreset(p Params) error {
	path, err := PresetPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"))
	}
	return fault.Wrap(os.WriteFile(path, p.Snapshot(), 0644), fmsg.With("write preset"))
}

// LoadPreset restores p from the saved snapshot. Without a preset p keeps
// its values.
func LoadPreset(p *Params) error {
	path, err := PresetPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fault.Wrap(err, fmsg.With("read preset"))
	}
	return fault.Wrap(p.Restore(data), fmsg.With(path))
}

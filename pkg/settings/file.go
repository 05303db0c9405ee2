package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// FileVersion is the current settings file schema version.
const FileVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported settings file version")

type fileEnvelope struct {
	Version  int      `json:"version"`
	Settings Settings `json:"settings"`
}

// LoadFile reads settings from path. A missing file yields defaults. Besides
// the versioned envelope it accepts a bare settings object and the
// {"state": {...}, "version": 0} wrapper written by older browser clients.
func LoadFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if !gjson.ValidBytes(b) {
		return Settings{}, fmt.Errorf("decode settings file %s: invalid json", path)
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return Settings{}, fmt.Errorf("decode settings file %s: expected an object", path)
	}

	var payload string
	switch {
	case root.Get("settings").IsObject():
		v := root.Get("version").Int()
		if v < 1 || v > FileVersion {
			return Settings{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
		payload = root.Get("settings").Raw
	case root.Get("state").IsObject():
		if v := root.Get("version").Int(); v != 0 {
			return Settings{}, fmt.Errorf("%w: legacy %d", ErrUnsupportedVersion, v)
		}
		payload = root.Get("state").Raw
	default:
		payload = root.Raw
	}

	s := Default()
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings file: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

// SaveFile writes settings atomically in the versioned envelope.
func SaveFile(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	b, err := json.MarshalIndent(fileEnvelope{Version: FileVersion, Settings: s}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write settings temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}

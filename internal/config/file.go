package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// SetFileValue validates value for key and writes it to the YAML file at path. Only keys
// already present in the file are kept alongside it; defaults, environment variables and
// flags never leak into the file.
func SetFileValue(path, key, value string) error {
	key = NormalizeKey(key)
	typed, err := ParseValue(key, value)
	if err != nil {
		return err
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}
	doc[key] = typed

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/rota/errors"
)

// Marshal renders the configuration as TOML.
func Marshal(c *Config) ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// WriteFile writes c to path, keeping the previous file as path.back1.
func WriteFile(c *Config, path string) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".back1", prev, 0644); err != nil {
			return errors.Wrap(err, "failed to create .back1")
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

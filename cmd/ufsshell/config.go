package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// shellConfig holds the handful of settings the shell needs before it ever
// touches a disk image: where the image lives by default and how big a
// fresh one should be when --create is used without --size.
type shellConfig struct {
	ImagePath   string `yaml:"image_path"`
	DefaultSize uint32 `yaml:"default_size_blocks"`
	LogLevel    string `yaml:"log_level"`
}

func defaultConfig() shellConfig {
	return shellConfig{
		ImagePath:   "ufs.img",
		DefaultSize: 2048,
		LogLevel:    "info",
	}
}

// loadConfig reads path if it exists, overlaying it onto defaultConfig; a
// missing file is not an error, since the shell is usable with no config at
// all.
func loadConfig(path string) (shellConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

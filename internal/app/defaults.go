package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults resolves the default paths the CLI operates on. Both can
// be overridden through the environment: RECGATE_CONFIG_PATH for the
// config file, RECGATE_HOME for the data base directory.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath honors RECGATE_CONFIG_PATH, then ~/.config/recgate.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("RECGATE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "recgate.toml"), nil
}

// getBaseDir honors RECGATE_HOME, then the XDG data dir
// ~/.local/share/recgate.
func getBaseDir() (string, error) {
	if path := os.Getenv("RECGATE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "recgate"), nil
}

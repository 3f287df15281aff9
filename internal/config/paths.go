package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the default data directory for hazoom.
// Windows: %LOCALAPPDATA%\hazoom
// Linux/Mac: ~/.local/share/hazoom
func DataDir() string {
	if dir := os.Getenv("HAZOOM_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "hazoom")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hazoom")
}

// EnsureDirs creates the required directories if they don't exist.
func EnsureDirs(cfg *Config) error {
	dirs := []string{cfg.DataDir, filepath.Dir(cfg.DatabasePath)}
	if cfg.SemanticSearch && cfg.VectorDir != "" {
		dirs = append(dirs, cfg.VectorDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Package paths resolves where domainkit keeps its configuration, data and
// schema files. Every resolver returns an absolute path.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "domainkit"

// Directory and file names used when nothing else is configured.
const (
	DefaultConfigDirName = ".domainkit"
	DefaultDataDirName   = ".domainkit-db"
	DefaultSchemaName    = "schema.yaml"
)

// Environment overrides.
const (
	EnvConfigDir = "DOMAINKIT_CONFIG_DIR"
	EnvDataDir   = "DOMAINKIT_DATA_DIR"
	EnvSchema    = "DOMAINKIT_SCHEMA"
)

// platformDir is replaced in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $env/domainkit, or home/fallback.../domainkit on Linux. Other
// platforms share the user config directory for configuration and data.
func xdgDir(env string, fallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appName), nil
	}
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/domainkit on Linux, falling back
// to ~/.config/domainkit, and the user config directory elsewhere.
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns $XDG_DATA_HOME/domainkit on Linux, falling back to
// ~/.local/share/domainkit, and the user config directory elsewhere.
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// first returns the first non-empty candidate made absolute.
func first(candidates ...string) (string, bool, error) {
	for _, c := range candidates {
		if c != "" {
			abs, err := filepath.Abs(c)
			return abs, true, err
		}
	}
	return "", false, nil
}

// ResolveConfigDir picks flag, then $DOMAINKIT_CONFIG_DIR, then the platform
// default.
func ResolveConfigDir(flag string) (string, error) {
	if dir, ok, err := first(flag, os.Getenv(EnvConfigDir)); ok {
		return dir, err
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks flag, then the config file value, then
// $DOMAINKIT_DATA_DIR, then .domainkit-db in the working directory.
func ResolveDataDir(flag, configValue string) (string, error) {
	if dir, ok, err := first(flag, configValue, os.Getenv(EnvDataDir)); ok {
		return dir, err
	}
	return filepath.Abs(DefaultDataDirName)
}

// ResolveSchema picks flag, then the config file value, then
// $DOMAINKIT_SCHEMA, then schema.yaml in configDir. A relative config value
// is taken relative to configDir.
func ResolveSchema(flag, configValue, configDir string) (string, error) {
	if configValue != "" && !filepath.IsAbs(configValue) {
		configValue = filepath.Join(configDir, configValue)
	}
	if p, ok, err := first(flag, configValue, os.Getenv(EnvSchema)); ok {
		return p, err
	}
	return filepath.Abs(filepath.Join(configDir, DefaultSchemaName))
}

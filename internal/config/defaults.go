package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "plainid"

// PlatformDataDir is where plainid keeps its database, journal and logs
// when PLAINID_DATA_DIR is unset: Application Support on macOS,
// $XDG_DATA_HOME on Linux, %APPDATA% on Windows and ~/.plainid elsewhere.
func PlatformDataDir() string {
	home := homeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		return xdgDir("XDG_DATA_HOME", home, ".local", "share")
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, appName)
		}
		return filepath.Join(home, "AppData", "Roaming", appName)
	}
	return filepath.Join(home, "."+appName)
}

// PlatformConfigDir is $XDG_CONFIG_HOME/plainid on Linux and the data
// directory everywhere else.
func PlatformConfigDir() string {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", homeDir(), ".config")
	}
	return PlatformDataDir()
}

func xdgDir(env, home string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats lists the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile returns the first config.<ext> found in the working
// directory, the config directory or the data directory, or "".
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir(), Dir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

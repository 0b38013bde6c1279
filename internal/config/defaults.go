package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "cogtask"

// PlatformDataDir is the per-user application directory: Application
// Support on macOS, APPDATA on Windows, XDG_DATA_HOME elsewhere.
func PlatformDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			base = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(base, appName)
}

// DataDir is PlatformDataDir unless COGTASK_DATA_DIR is set.
func DataDir() string {
	if dir := os.Getenv("COGTASK_DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

func SupportedConfigFormats() []string {
	return []string{".toml", ".yaml", ".yml", ".json"}
}

// configCandidates lists, in priority order, cogtask.<ext> in the working
// directory followed by config.<ext> in DataDir.
func configCandidates() []string {
	var out []string
	for _, ext := range SupportedConfigFormats() {
		out = append(out, appName+ext)
	}
	for _, ext := range SupportedConfigFormats() {
		out = append(out, filepath.Join(DataDir(), "config"+ext))
	}
	return out
}

// FindConfigFile returns the first existing candidate, or "".
func FindConfigFile() string {
	for _, p := range configCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ConfigPath is the config file to use when none is given: an existing
// candidate if there is one, else config.toml in DataDir.
func ConfigPath() string {
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "config.toml")
}

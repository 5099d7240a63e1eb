package internal

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/relayclaw/pkg/config"
)

const Logo = "📨"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".relayclaw", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// SessionsFilePath returns the sessions record file inside the configured
// state directory.
func SessionsFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Session.StatePath(), "sessions.json")
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += " (git: " + gitCommit + ")"
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}

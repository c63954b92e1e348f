package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the runtime configuration for the bridge. Every field has a
// baked-in default matching the container image layout and can be overridden
// through an OSAIBOT_* environment variable or a CLI flag.
type Config struct {
	// ListenAddr is the TCP address the bot-facing server binds to.
	ListenAddr string
	// AdminAddr enables the HTTP status endpoint when non-empty.
	AdminAddr string
	// RunRoot is the directory holding per-identity container state.
	RunRoot string
	// JailRoot is the frozen base image used as the overlay lower layer.
	JailRoot string
	// ShellPath is the host-side shell binary sealed into a memfd per session.
	ShellPath string
	// LauncherPath is the sandbox launcher script exec'd under the PTY.
	LauncherPath string
	// UploadMount is the FUSE mountpoint for per-session upload files.
	UploadMount string
}

// Default returns the configuration for the standard container layout.
func Default() *Config {
	return &Config{
		ListenAddr:   "0.0.0.0:49813",
		RunRoot:      "/run/container-run",
		JailRoot:     "/jailroot",
		ShellPath:    "/home/user/bash",
		LauncherPath: "/home/user/jail.sh",
		UploadMount:  "/run/discord-upload-fuse",
	}
}

// FromEnv returns the default configuration with OSAIBOT_* environment
// overrides applied.
func FromEnv() *Config {
	cfg := Default()
	override(&cfg.ListenAddr, "OSAIBOT_LISTEN")
	override(&cfg.AdminAddr, "OSAIBOT_ADMIN")
	override(&cfg.RunRoot, "OSAIBOT_RUN_ROOT")
	override(&cfg.JailRoot, "OSAIBOT_JAIL_ROOT")
	override(&cfg.ShellPath, "OSAIBOT_SHELL")
	override(&cfg.LauncherPath, "OSAIBOT_LAUNCHER")
	override(&cfg.UploadMount, "OSAIBOT_UPLOAD_MOUNT")
	return cfg
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the host-side collaborators the bridge depends on are
// present. The run root itself is only checked for being an absolute path;
// the per-identity directories under it are created on demand.
func (c *Config) Validate() error {
	for _, p := range []string{c.JailRoot, c.ShellPath, c.LauncherPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if !filepath.IsAbs(c.RunRoot) {
		return fmt.Errorf("config: run root %q must be absolute", c.RunRoot)
	}
	return nil
}

// RunDir returns the per-identity state directory under the run root.
func (c *Config) RunDir(idname string) string {
	return filepath.Join(c.RunRoot, idname)
}

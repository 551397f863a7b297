package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const unitName = "sizebot.service"

// ServiceConfig describes how systemd should start the bot.
type ServiceConfig struct {
	BinaryPath string // absolute path of the sizebot binary
	WorkDir    string // working directory; relative resource paths resolve here
	ConfigPath string // optional --config file
	Env        map[string]string
}

// UnitPath returns where the user unit is installed.
func UnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", unitName), nil
}

// GenerateSystemdUnit renders a user unit running "sizebot serve".
func GenerateSystemdUnit(cfg ServiceConfig) string {
	exec := cfg.BinaryPath + " serve"
	if cfg.ConfigPath != "" {
		exec += " --config " + cfg.ConfigPath
	}

	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	sb.WriteString("Description=Sizebot part size lookup bot\n")
	sb.WriteString("After=network-online.target\n")
	sb.WriteString("Wants=network-online.target\n\n")
	sb.WriteString("[Service]\n")
	sb.WriteString("Type=simple\n")
	fmt.Fprintf(&sb, "ExecStart=%s\n", exec)
	if cfg.WorkDir != "" {
		fmt.Fprintf(&sb, "WorkingDirectory=%s\n", cfg.WorkDir)
	}
	for _, k := range sortedKeys(cfg.Env) {
		fmt.Fprintf(&sb, "Environment=%s=%s\n", k, cfg.Env[k])
	}
	sb.WriteString("Restart=on-failure\n")
	sb.WriteString("RestartSec=10\n\n")
	sb.WriteString("[Install]\n")
	sb.WriteString("WantedBy=default.target\n")
	return sb.String()
}

// Install writes the unit to path and returns follow-up instructions.
func Install(path string, cfg ServiceConfig) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create systemd dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateSystemdUnit(cfg)), 0o644); err != nil {
		return "", fmt.Errorf("write unit file: %w", err)
	}
	return fmt.Sprintf(`Unit installed: %s

  Enable:  systemctl --user daemon-reload && systemctl --user enable --now sizebot
  Status:  systemctl --user status sizebot
  Logs:    journalctl --user -u sizebot -f`, path), nil
}

// Uninstall removes the unit at path.
func Uninstall(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("service not installed (no unit at %s)", path)
		}
		return fmt.Errorf("remove unit file: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Service struct {
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	LogLevel   string
}

// RenderUnit returns a systemd unit that runs the controller after the network is up.
func RenderUnit(s Service) string {
	args := []string{s.Binary, "-config-file", s.ConfigFile}
	if s.LogLevel != "" {
		args = append(args, "-log-level", s.LogLevel)
	}

	var user string
	if s.User != "" {
		user = "User=" + s.User + "\n"
	}

	return fmt.Sprintf(`[Unit]
Description=Heater controller
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
%sWorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, user, s.WorkDir, strings.Join(args, " "))
}

// InstallService writes the unit file to path.
func InstallService(path string, s Service) error {
	if !filepath.IsAbs(s.Binary) {
		return fmt.Errorf("service binary must be an absolute path: %q", s.Binary)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}
	return os.WriteFile(path, []byte(RenderUnit(s)), 0644)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"formbridge/internal/config"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.formbridge.gateway"
	systemdUnit  = "formbridge.service"
)

// serviceFile is a rendered launchd plist or systemd unit.
type serviceFile struct {
	Path    string
	Content string
	Hints   []string // printed after install
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the HTTP gateway as a user service (launchd/systemd)",
		Long:  "Generates a service file that runs `formbridge gateway` with the current config on login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := filepath.Abs(config.ExpandPath(resolveConfigPath()))
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}

			svc, err := serviceFor(runtime.GOOS, home, execPath, cfgPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(config.DefaultConfigDir(), "logs"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(svc.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(svc.Path, []byte(svc.Content), 0o644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Service installed: %s\n", svc.Path)
			for _, h := range svc.Hints {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the gateway user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			svc, err := serviceFor(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(svc.Path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service uninstalled: %s\n", svc.Path)
			return nil
		},
	}
}

func serviceFor(goos, home, execPath, cfgPath string) (serviceFile, error) {
	switch goos {
	case "darwin":
		return launchdService(home, execPath, cfgPath), nil
	case "linux":
		return systemdService(home, execPath, cfgPath), nil
	default:
		return serviceFile{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func launchdService(home, execPath, cfgPath string) serviceFile {
	path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	logDir := filepath.Join(home, ".formbridge", "logs")
	r := strings.NewReplacer(
		"{{LABEL}}", launchdLabel,
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LOG}}", filepath.Join(logDir, "gateway.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "gateway-error.log"),
	)
	return serviceFile{
		Path:    path,
		Content: r.Replace(launchdTemplate),
		Hints: []string{
			"To start: launchctl load " + path,
			"To stop:  launchctl unload " + path,
		},
	}
}

func systemdService(home, execPath, cfgPath string) serviceFile {
	r := strings.NewReplacer("{{EXEC}}", systemdQuote(execPath), "{{CONFIG}}", systemdQuote(cfgPath))
	return serviceFile{
		Path:    filepath.Join(home, ".config", "systemd", "user", systemdUnit),
		Content: r.Replace(systemdTemplate),
		Hints: []string{
			"To start:  systemctl --user start formbridge",
			"To enable: systemctl --user enable formbridge",
			"To stop:   systemctl --user stop formbridge",
		},
	}
}

// systemdQuote renders s as one double-quoted ExecStart argument.
func systemdQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "%", "%%").Replace(s) + `"`
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=formbridge tool gateway
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} gateway --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`

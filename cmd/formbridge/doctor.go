package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"formbridge/internal/audit"
	"formbridge/internal/config"
	"formbridge/internal/forms"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your formbridge setup",
		Long: `Verifies that the configuration loads, the forms API is reachable,
the audit database is writable and the gateway port is free. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("formbridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'formbridge init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Forms API reachable
			ctx, cancel := context.WithTimeout(cmd.Context(), detectTimeout)
			defer cancel()
			client := forms.NewHTTPClient(time.Duration(cfg.Forms.TimeoutSeconds) * time.Second)
			ok, err := forms.Detect(ctx, client, cfg.Forms.RESTRoot)
			switch {
			case err != nil:
				printFail("Forms API", err.Error())
				failed++
			case !ok:
				printFail("Forms API", fmt.Sprintf("%s does not advertise %s", cfg.Forms.RESTRoot, forms.APINamespace))
				failed++
			default:
				printPass("Forms API", forms.NamespaceURL(cfg.Forms.RESTRoot))
				passed++
			}
			if cfg.Forms.Detect == "never" {
				printWarn("Detect mode", "never: no tools will be registered")
				warned++
			}
			if cfg.Forms.Username == "" {
				printWarn("Credentials", "none configured, requests are anonymous")
				warned++
			}

			// 4. Audit database writable
			if cfg.Audit.Enabled {
				if err := checkDatabase(cmd.Context(), cfg.Audit.DBPath); err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					printPass("Audit database", cfg.Audit.DBPath)
					passed++
				}
			}

			// 5. Gateway port
			if cfg.Gateway.Enabled {
				addr := gatewayAddr(cfg)
				if err := checkPort(addr); err != nil {
					printWarn("Gateway port", fmt.Sprintf("%s may be in use: %v", addr, err))
					warned++
				} else {
					printPass("Gateway port", addr+" available")
					passed++
				}
				if cfg.Gateway.APIKey == "" {
					printWarn("Gateway auth", "no apiKey set, /v1 is open")
					warned++
				}
			}

			// 6. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// checkDatabase opens (and migrates) the audit store.
func checkDatabase(ctx context.Context, dbPath string) error {
	store, err := audit.Open(ctx, dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.Recent(ctx, 1); err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"formbridge/internal/audit"
	"formbridge/internal/config"
	"formbridge/internal/forms"
	"formbridge/internal/tool"
)

const detectTimeout = 10 * time.Second

// app wires the forms provider, the tool registry and the optional audit
// store from a loaded config.
type app struct {
	registry *tool.Registry
	audit    *audit.Store
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	httpClient := forms.NewHTTPClient(time.Duration(cfg.Forms.TimeoutSeconds) * time.Second)

	provider := forms.New(forms.Config{
		Requester: forms.NewClient(forms.ClientConfig{
			RESTRoot:   cfg.Forms.RESTRoot,
			HTTPClient: httpClient,
			Username:   cfg.Forms.Username,
			Password:   cfg.Forms.AppPassword,
			Logger:     logger,
		}),
		Available:  resolveAvailability(ctx, cfg, httpClient),
		StrictArgs: cfg.Forms.StrictArgs,
		Logger:     logger,
	})

	a := &app{registry: tool.NewRegistry(logger)}

	if cfg.Audit.Enabled {
		store, err := audit.Open(ctx, cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		if cfg.Audit.RetentionDays > 0 {
			if _, err := store.Prune(ctx, time.Duration(cfg.Audit.RetentionDays)*24*time.Hour); err != nil {
				logger.Warn("audit prune failed", "err", err)
			}
		}
		a.audit = store
		a.registry.SetRecorder(store)
	}

	a.registry.RegisterProvider(provider)
	logger.Debug("tools registered", "names", a.registry.Names())
	return a, nil
}

func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
}

// resolveAvailability maps forms.detect to a predicate. "auto" probes the
// REST index once; a failed probe counts as unavailable.
func resolveAvailability(ctx context.Context, cfg *config.Config, client *http.Client) forms.Availability {
	switch cfg.Forms.Detect {
	case "never":
		return forms.Never
	case "auto":
		ctx, cancel := context.WithTimeout(ctx, detectTimeout)
		defer cancel()
		ok, err := forms.Detect(ctx, client, cfg.Forms.RESTRoot)
		if err != nil {
			logger.Warn("forms API detection failed", "restRoot", cfg.Forms.RESTRoot, "err", err)
			return forms.Never
		}
		logger.Info("forms API detection", "restRoot", cfg.Forms.RESTRoot, "available", ok)
		if ok {
			return forms.Always
		}
		return forms.Never
	default:
		return forms.Always
	}
}

func gatewayAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
}

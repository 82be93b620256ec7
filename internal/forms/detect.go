package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

// Availability reports whether the forms API exists in the target site.
type Availability func() bool

// Always is an Availability that is unconditionally true.
func Always() bool { return true }

// Never is an Availability that is unconditionally false.
func Never() bool { return false }

// Detect fetches the REST index at restRoot and reports whether it
// advertises the forms namespace.
func Detect(ctx context.Context, client *http.Client, restRoot string) (bool, error) {
	url := strings.TrimRight(restRoot, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch rest index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch rest index: HTTP %d", resp.StatusCode)
	}

	var index struct {
		Namespaces []string `json:"namespaces"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&index); err != nil {
		return false, fmt.Errorf("parse rest index: %w", err)
	}
	return slices.Contains(index.Namespaces, APINamespace), nil
}

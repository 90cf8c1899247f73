package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"draftdrop/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAnalyzerCredentials reports whether the analyzer has an API key.
func CheckAnalyzerCredentials(cfg config.Analyzer) Result {
	name := "Analyzer"
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderOpenRouter
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s api key missing", provider)}
	}
	detail := provider
	if cfg.Model != "" {
		detail = fmt.Sprintf("%s (%s)", provider, cfg.Model)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCatalogCredentials reports whether the catalog token and listing
// template are configured.
func CheckCatalogCredentials(cfg config.Catalog) Result {
	const name = "Catalog"
	var missing []string
	if strings.TrimSpace(cfg.APIToken) == "" {
		missing = append(missing, "api token")
	}
	if strings.TrimSpace(cfg.ShopID) == "" {
		missing = append(missing, "shop id")
	}
	if cfg.BlueprintID <= 0 {
		missing = append(missing, "blueprint id")
	}
	if cfg.PrintProviderID <= 0 {
		missing = append(missing, "print provider id")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("shop %s, blueprint %d", cfg.ShopID, cfg.BlueprintID)}
}

// CheckCatalogAuth verifies catalog connectivity and authentication by
// listing shops with the configured token.
func CheckCatalogAuth(ctx context.Context, cfg config.Catalog) Result {
	const name = "Catalog API"

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return Result{Name: name, Detail: "missing api token"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/v1/shops.json", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api token)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "auth check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "auth check timed out"
	}
	return fmt.Sprintf("auth check failed (%v)", err)
}

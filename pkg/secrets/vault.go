// Package secrets loads model credentials from a HashiCorp Vault KV store into the
// process environment before configuration is read.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

// CredentialKeys are the only environment variables a Vault secret may set.
var CredentialKeys = []string{
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"DB_PASSWORD",
	"REDIS_PASSWORD",
}

type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	Overwrite bool
}

type VaultResult struct {
	Enabled bool
	Path    string
	Loaded  []string
	Skipped []string
}

func LoadVaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     "secret",
		Path:      os.Getenv("VAULT_PATH"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if v := os.Getenv("VAULT_MOUNT"); v != "" {
		cfg.Mount = v
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil {
		cfg.KVVersion = v
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_TIMEOUT_MS")); err == nil {
		cfg.Timeout = time.Duration(v) * time.Millisecond
	}
	return cfg
}

// ApplyModelCredentials fetches the secret at cfg.Path and exports the allow-listed
// credential keys it contains. Existing variables win unless Overwrite is set.
func ApplyModelCredentials(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}

	data, err := Fetch(ctx, cfg)
	if err != nil {
		return result, err
	}

	for _, key := range CredentialKeys {
		value, ok := data[key]
		if !ok {
			continue
		}
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return result, apperrors.NewInternalError("failed to export credential", err)
		}
		result.Loaded = append(result.Loaded, key)
	}
	return result, nil
}

// Fetch reads a KV secret and flattens its values to strings.
func Fetch(ctx context.Context, cfg VaultConfig) (map[string]string, error) {
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return nil, apperrors.NewValidationError("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	url := secretURL(cfg)
	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build vault request", err)
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("vault request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to read vault response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewExternalError(fmt.Sprintf("vault fetch failed: %s %s", resp.Status, strings.TrimSpace(string(body))), nil)
	}

	var payload struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewExternalError("invalid vault response", err)
	}

	raw := payload.Data
	if cfg.KVVersion != 1 {
		inner, ok := raw["data"]
		if !ok {
			return nil, apperrors.NewExternalError("vault response missing data for KV v2", nil)
		}
		raw = nil
		if err := json.Unmarshal(inner, &raw); err != nil {
			return nil, apperrors.NewExternalError("invalid vault KV v2 data", err)
		}
	}
	if raw == nil {
		return nil, apperrors.NewExternalError("vault response missing data", nil)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = flatten(v)
	}
	return out, nil
}

func secretURL(cfg VaultConfig) string {
	addr := strings.TrimRight(cfg.Addr, "/")
	mount := strings.Trim(cfg.Mount, "/")
	path := strings.TrimLeft(cfg.Path, "/")
	if cfg.KVVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path)
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path)
}

// flatten returns JSON strings unquoted and every other value as its JSON text.
func flatten(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if string(v) == "null" {
		return ""
	}
	return string(v)
}

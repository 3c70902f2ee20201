// Package vault resolves process secrets (database password, signal-source
// URL) from HashiCorp Vault's KV engine, grounded on the
// teacher's internal/vault/client.go (api.Client construction, TLS setup,
// an in-memory cache over reads). The teacher's version keyed secrets by
// (userID, exchange, testnet) for a multi-tenant SaaS surface; this module
// has no concept of a signed-in user (auth is an explicit Non-goal), so
// secrets are keyed by a flat name under one mount/path instead.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds the subset of HashiCorp Vault connection settings this
// module's single-secret-bundle use needs (spec §9 "config" ambient
// concern, carried regardless of the auth/billing Non-goals).
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // KV v2 mount, default "secret"
	SecretPath string // path prefix under the mount, e.g. "trading-engine/config"
	TLSEnabled bool
	CACert     string
}

// Client wraps the Vault API client with a read-through cache of resolved
// secrets, scoped to this process (not per-user).
type Client struct {
	client *api.Client
	cfg    Config

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient builds a Client. When cfg.Enabled is false, ResolveSecret never
// contacts Vault and always reports the secret missing, so the caller keeps
// its environment-sourced values.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg, cache: make(map[string]string)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, cfg: cfg, cache: make(map[string]string)}, nil
}

// ResolveSecret reads a single string field named key from the KV secret at
// cfg.SecretPath, caching it for the life of the process.
func (c *Client) ResolveSecret(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	if v, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if !c.cfg.Enabled {
		return "", fmt.Errorf("vault disabled: secret %q not resolved", key)
	}

	path := fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at %s", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret format at %s", path)
	}
	v, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("field %q not present at %s", key, path)
	}

	c.mu.Lock()
	c.cache[key] = v
	c.mu.Unlock()
	return v, nil
}

// IsEnabled reports whether this client was built against a live Vault.
func (c *Client) IsEnabled() bool { return c.cfg.Enabled }

// Health checks the Vault connection; a disabled client is always healthy.
func (c *Client) Health(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// ClearCache drops every cached secret, forcing the next ResolveSecret call
// to re-read from Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

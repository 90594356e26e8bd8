package config

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// ResolveSecrets replaces the database URL with the one stored in Vault when enabled
func (c *Config) ResolveSecrets() error {
	if !c.Vault.Enabled {
		return nil
	}

	vc := api.DefaultConfig()
	if c.Vault.Address != "" {
		vc.Address = c.Vault.Address
	}

	client, err := api.NewClient(vc)
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(c.Vault.Token)

	secret, err := client.Logical().Read(c.Vault.SecretPath)
	if err != nil {
		return fmt.Errorf("failed to read vault secret %s: %w", c.Vault.SecretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("vault secret %s is empty", c.Vault.SecretPath)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}
	url, ok := data["connection_string"].(string)
	if !ok || url == "" {
		return fmt.Errorf("vault secret %s has no connection_string", c.Vault.SecretPath)
	}

	c.Database.URL = url
	return nil
}

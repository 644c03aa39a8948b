package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultBackedKeyStore reads a device's shared key from HashiCorp Vault's
// KV v2 secrets engine, for fleets that rotate device keys centrally
// instead of flashing them once at manufacturing time.
type VaultBackedKeyStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultBackedKeyStore builds a client against address, scoped to the
// given KV v2 mount and data path.
func NewVaultBackedKeyStore(address, mountPath, dataPath string, log *slog.Logger) (*VaultBackedKeyStore, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault key store: create client: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &VaultBackedKeyStore{client: client, mountPath: mountPath, dataPath: dataPath, log: log}, nil
}

// FetchSharedKey reads the "key" field at <mountPath>/data/<dataPath>.
func (v *VaultBackedKeyStore) FetchSharedKey() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := fmt.Sprintf("%s/data/%s", v.mountPath, v.dataPath)
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault key store: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault key store: no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault key store: unexpected response shape at %s", path)
	}

	keyStr, ok := data["key"].(string)
	if !ok {
		return nil, fmt.Errorf("vault key store: %s has no string \"key\" field", path)
	}

	v.log.Debug("fetched shared key from vault", "path", path)
	return []byte(keyStr), nil
}

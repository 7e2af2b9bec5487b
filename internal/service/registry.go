package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/hosting"
	"github.com/reelforge/reelforge/internal/service/storage"
	"github.com/reelforge/reelforge/internal/vault"
	"github.com/reelforge/reelforge/pkg/cache"
)

var ErrTenantNotFound = errors.New("tenant not found")

// TenantRegistry is the only reader of tenant rows. Lookups, decrypted
// credentials and per-tenant storage clients are cached under one TTL so
// stages stay off the database and the vault on hot paths.
type TenantRegistry struct {
	db     *gorm.DB
	vault  vault.Vault
	logger *zap.Logger

	tenants *cache.Cache[*models.Tenant]
	creds   *cache.Cache[hosting.Credentials]
	stores  *cache.Cache[ObjectStore]

	shared   ObjectStore
	newStore func(ctx context.Context, cfg storage.Config) (ObjectStore, error)
}

// NewTenantRegistry builds a registry around the shared storage client.
// Tenants carrying their own storage credentials get a dedicated client.
func NewTenantRegistry(db *gorm.DB, v vault.Vault, shared ObjectStore, ttl time.Duration, logger *zap.Logger) *TenantRegistry {
	return &TenantRegistry{
		db:      db,
		vault:   v,
		logger:  logger,
		tenants: cache.New[*models.Tenant](ttl),
		creds:   cache.New[hosting.Credentials](ttl),
		stores:  cache.New[ObjectStore](ttl),
		shared:  shared,
		newStore: func(ctx context.Context, cfg storage.Config) (ObjectStore, error) {
			return storage.NewClient(ctx, cfg)
		},
	}
}

// Tenant looks up one tenant. Inactive and suspended tenants are returned
// with their status intact; callers decide what to refuse.
func (r *TenantRegistry) Tenant(ctx context.Context, id string) (*models.Tenant, error) {
	if tenant, ok := r.tenants.Get(id); ok {
		return tenant, nil
	}

	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}

	r.tenants.Set(id, &tenant)
	return &tenant, nil
}

// PlatformCredentials opens the tenant's hosting-platform secret.
func (r *TenantRegistry) PlatformCredentials(ctx context.Context, tenant *models.Tenant) (hosting.Credentials, error) {
	if creds, ok := r.creds.Get(tenant.ID); ok {
		return creds, nil
	}

	plain, err := r.vault.Decrypt(tenant.ID, models.SecretFieldPlatform, tenant.PlatformSecret)
	if err != nil {
		return hosting.Credentials{}, fmt.Errorf("failed to open platform credentials for tenant %s: %w", tenant.ID, err)
	}

	var creds hosting.Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return hosting.Credentials{}, fmt.Errorf("failed to parse platform credentials for tenant %s: %w", tenant.ID, err)
	}

	r.creds.Set(tenant.ID, creds)
	return creds, nil
}

// StorageFor returns the tenant's own storage client when it carries
// storage credentials, the shared client otherwise.
func (r *TenantRegistry) StorageFor(ctx context.Context, tenant *models.Tenant) (ObjectStore, error) {
	if tenant.StorageSecret == "" {
		return r.shared, nil
	}
	if store, ok := r.stores.Get(tenant.ID); ok {
		return store, nil
	}

	plain, err := r.vault.Decrypt(tenant.ID, models.SecretFieldStorage, tenant.StorageSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage credentials for tenant %s: %w", tenant.ID, err)
	}

	var cfg storage.Config
	if err := json.Unmarshal([]byte(plain), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse storage credentials for tenant %s: %w", tenant.ID, err)
	}

	store, err := r.newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage client for tenant %s: %w", tenant.ID, err)
	}

	r.stores.Set(tenant.ID, store)
	r.logger.Debug("Built tenant storage client", zap.String("tenant_id", tenant.ID))
	return store, nil
}

// Invalidate drops every cached entry for the tenant. Call after any
// tenant mutation so credential rotation takes effect within one lookup.
func (r *TenantRegistry) Invalidate(id string) {
	r.tenants.Delete(id)
	r.creds.Delete(id)
	r.stores.Delete(id)
}

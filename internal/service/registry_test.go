package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/hosting"
	"github.com/reelforge/reelforge/internal/service/storage"
	"github.com/reelforge/reelforge/internal/vault"
)

func newTestVault(t *testing.T) vault.Vault {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	v, err := vault.NewAESGCM(key)
	require.NoError(t, err)
	return v
}

func seedTenant(t *testing.T, db *gorm.DB, v vault.Vault, mutate ...func(*models.Tenant)) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:       uuid.NewString(),
		Name:     "tenant-" + uuid.NewString()[:8],
		Status:   models.TenantActive,
		Personas: models.StringList{"coach_maya"},
	}
	for _, m := range mutate {
		m(tenant)
	}

	if tenant.PlatformSecret == "" {
		secret, err := v.Encrypt(tenant.ID, models.SecretFieldPlatform,
			`{"clientId":"c1","clientSecret":"s1","refreshToken":"r1"}`)
		require.NoError(t, err)
		tenant.PlatformSecret = secret
	}

	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func newTestRegistry(t *testing.T) (*TenantRegistry, *gorm.DB, vault.Vault) {
	t.Helper()
	db := newTestDB(t)
	v := newTestVault(t)
	return NewTenantRegistry(db, v, nil, time.Minute, zap.NewNop()), db, v
}

func TestRegistryTenantCachedUntilInvalidate(t *testing.T) {
	reg, db, v := newTestRegistry(t)
	tenant := seedTenant(t, db, v)

	got, err := reg.Tenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)

	// A direct row change is invisible while the cache entry lives.
	require.NoError(t, db.Model(&models.Tenant{}).Where("id = ?", tenant.ID).
		Update("status", models.TenantSuspended).Error)

	got, err = reg.Tenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantActive, got.Status)

	reg.Invalidate(tenant.ID)

	got, err = reg.Tenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantSuspended, got.Status)
}

func TestRegistryTenantNotFound(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Tenant(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRegistryPlatformCredentials(t *testing.T) {
	reg, db, v := newTestRegistry(t)
	tenant := seedTenant(t, db, v)

	creds, err := reg.PlatformCredentials(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, hosting.Credentials{ClientID: "c1", ClientSecret: "s1", RefreshToken: "r1"}, creds)
}

func TestRegistryCredentialsBoundToTenant(t *testing.T) {
	reg, db, v := newTestRegistry(t)
	victim := seedTenant(t, db, v)

	// A ciphertext lifted onto another tenant's row must not open.
	thief := seedTenant(t, db, v, func(tn *models.Tenant) {
		tn.PlatformSecret = victim.PlatformSecret
	})

	_, err := reg.PlatformCredentials(context.Background(), thief)
	assert.ErrorContains(t, err, "failed to open platform credentials")
}

func TestRegistryStorageFor(t *testing.T) {
	reg, db, v := newTestRegistry(t)
	shared := &stubStore{}
	reg.shared = shared

	plain := seedTenant(t, db, v)
	store, err := reg.StorageFor(context.Background(), plain)
	require.NoError(t, err)
	assert.Same(t, shared, store.(*stubStore))

	tenant := seedTenant(t, db, v, func(tn *models.Tenant) {
		secret, err := v.Encrypt(tn.ID, models.SecretFieldStorage,
			`{"endpoint":"https://s3.tenant.example","bucket":"own-bucket","accessKeyId":"ak","secretAccessKey":"sk"}`)
		require.NoError(t, err)
		tn.StorageSecret = secret
	})

	var built int
	var gotCfg storage.Config
	own := &stubStore{}
	reg.newStore = func(ctx context.Context, cfg storage.Config) (ObjectStore, error) {
		built++
		gotCfg = cfg
		return own, nil
	}

	store, err = reg.StorageFor(context.Background(), tenant)
	require.NoError(t, err)
	assert.Same(t, own, store.(*stubStore))
	assert.Equal(t, "own-bucket", gotCfg.Bucket)

	// Cached: the factory runs once.
	_, err = reg.StorageFor(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, built)
}

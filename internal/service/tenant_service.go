package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/password"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
)

const createTenantAttempts = 3

type TenantRepository interface {
	Create(ctx context.Context, tenant *model.Tenant) error
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	GetByKeyPrefix(ctx context.Context, prefix string) (*model.Tenant, error)
}

// TenantResolver maps a public secret key to the tenant owning it.
type TenantResolver interface {
	Resolve(ctx context.Context, key string) (*model.Tenant, error)
}

type TenantService struct {
	tenants TenantRepository
	now     func() time.Time
}

func NewTenantService(tenants TenantRepository) *TenantService {
	return &TenantService{tenants: tenants, now: time.Now}
}

// Create registers a tenant and returns it with its plain secret key. Only the
// key's lookup prefix and bcrypt hash are stored.
func (s *TenantService) Create(ctx context.Context, name string) (*model.Tenant, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", appErr.Invalid("tenant name is required")
	}
	var lastErr error
	for i := 0; i < createTenantAttempts; i++ {
		key, prefix, err := password.NewTenantKey()
		if err != nil {
			return nil, "", err
		}
		hash, err := password.Hash(key)
		if err != nil {
			return nil, "", err
		}
		id := newID()
		tenant := &model.Tenant{
			ID:         id,
			Name:       name,
			Collection: vectorstore.CollectionName(id),
			KeyPrefix:  prefix,
			KeyHash:    hash,
			Active:     true,
			Ctime:      s.now().UnixMilli(),
		}
		err = s.tenants.Create(ctx, tenant)
		if err == nil {
			logutil.GetLogger(ctx).Info("tenant created", zap.String("tenant_id", tenant.ID), zap.String("name", name))
			return tenant, key, nil
		}
		if !appErr.IsConflict(err) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// Resolve returns the active tenant owning key. Unknown keys, wrong secrets
// and inactive tenants all yield ErrUnauthorized.
func (s *TenantService) Resolve(ctx context.Context, key string) (*model.Tenant, error) {
	key = strings.TrimSpace(key)
	if len(key) <= password.LookupPrefixLen {
		return nil, appErr.ErrUnauthorized
	}
	tenant, err := s.tenants.GetByKeyPrefix(ctx, password.LookupPrefix(key))
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrUnauthorized
		}
		return nil, err
	}
	if err := password.Compare(tenant.KeyHash, key); err != nil {
		return nil, appErr.ErrUnauthorized
	}
	if !tenant.Active {
		return nil, appErr.ErrUnauthorized
	}
	return tenant, nil
}

// Get returns an active tenant by id.
func (s *TenantService) Get(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, appErr.ErrNotFound
	}
	return tenant, nil
}

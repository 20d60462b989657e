package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

const tenantTable = "tenants"

type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

func (r *TenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	data := map[string]interface{}{
		"id":         tenant.ID,
		"name":       tenant.Name,
		"collection": tenant.Collection,
		"key_prefix": tenant.KeyPrefix,
		"key_hash":   tenant.KeyHash,
		"active":     tenant.Active,
		"ctime":      tenant.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert(tenantTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *TenantRepo) GetByKeyPrefix(ctx context.Context, prefix string) (*model.Tenant, error) {
	return r.getOne(ctx, map[string]interface{}{"key_prefix": prefix})
}

func (r *TenantRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Tenant, error) {
	fields := []string{"id", "name", "collection", "key_prefix", "key_hash", "active", "ctime"}
	sqlStr, args, err := builder.BuildSelect(tenantTable, where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var t model.Tenant
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&t.ID, &t.Name, &t.Collection, &t.KeyPrefix, &t.KeyHash, &t.Active, &t.Ctime,
	)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

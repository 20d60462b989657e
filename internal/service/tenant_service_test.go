package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/password"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
)

func TestTenantCreateAndResolve(t *testing.T) {
	repo := newMemTenantRepo()
	svc := NewTenantService(repo)
	ctx := context.Background()

	tenant, key, err := svc.Create(ctx, "  Acme Support ")
	require.NoError(t, err)
	require.Equal(t, "Acme Support", tenant.Name)
	require.True(t, strings.HasPrefix(key, "rk_"))
	require.Equal(t, password.LookupPrefix(key), tenant.KeyPrefix)
	require.NotContains(t, tenant.KeyHash, key)
	require.Equal(t, vectorstore.CollectionName(tenant.ID), tenant.Collection)
	require.True(t, vectorstore.ValidCollection(tenant.Collection))

	resolved, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	require.Equal(t, tenant.ID, resolved.ID)

	got, err := svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.Collection, got.Collection)
}

func TestTenantResolveRejects(t *testing.T) {
	repo := newMemTenantRepo()
	svc := NewTenantService(repo)
	ctx := context.Background()
	tenant, key, err := svc.Create(ctx, "acme")
	require.NoError(t, err)

	tampered := key[:len(key)-1] + "x"
	for _, k := range []string{"", "rk_short", "rk_00000000deadbeef", tampered} {
		_, err := svc.Resolve(ctx, k)
		require.ErrorIs(t, err, appErr.ErrUnauthorized, "key %q", k)
	}

	repo.byID[tenant.ID].Active = false
	_, err = svc.Resolve(ctx, key)
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
	_, err = svc.Get(ctx, tenant.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestTenantCreateRetriesPrefixCollision(t *testing.T) {
	repo := newMemTenantRepo()
	repo.conflicts = 2
	svc := NewTenantService(repo)
	tenant, _, err := svc.Create(context.Background(), "acme")
	require.NoError(t, err)
	require.NotEmpty(t, tenant.ID)

	repo.conflicts = createTenantAttempts
	_, _, err = svc.Create(context.Background(), "other")
	require.ErrorIs(t, err, appErr.ErrConflict)

	_, _, err = svc.Create(context.Background(), " ")
	require.ErrorIs(t, err, appErr.ErrValidation)
}

package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/repo"
	"github.com/xxxsen/ragdesk/internal/testutil"
)

func newDoc(tenantID string) *model.Document {
	return model.NewDocument(uuid.NewString(), tenantID, "tenant_x", "a.txt", "txt", 12, "hash", time.Now())
}

func TestDocumentRepoCreateGetIsolation(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	docs := repo.NewDocumentRepo(db)

	tenant := uuid.NewString()
	doc := newDoc(tenant)
	require.NoError(t, docs.Create(ctx, doc))
	require.ErrorIs(t, docs.Create(ctx, doc), appErr.ErrConflict)

	fetched, err := docs.GetByID(ctx, tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, fetched.Status)
	require.Equal(t, 0, fetched.Progress)
	require.Nil(t, fetched.ErrorMessage)

	_, err = docs.GetByID(ctx, uuid.NewString(), doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentRepoProgressGuard(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	docs := repo.NewDocumentRepo(db)

	tenant := uuid.NewString()
	doc := newDoc(tenant)
	require.NoError(t, docs.Create(ctx, doc))

	now := time.Now()
	require.NoError(t, doc.Advance(model.StageUploading, 20, now))
	require.NoError(t, docs.SaveProgress(ctx, doc))

	stale := *doc
	stale.Progress = 10
	require.ErrorIs(t, docs.SaveProgress(ctx, &stale), appErr.ErrConflict)

	require.NoError(t, doc.Fail("boom", now))
	require.NoError(t, docs.MarkFailed(ctx, doc))
	require.ErrorIs(t, docs.MarkFailed(ctx, doc), appErr.ErrConflict)

	fetched, err := docs.GetByID(ctx, tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, fetched.Status)
	require.Equal(t, 20, fetched.Progress)
	require.Equal(t, "boom", fetched.ErrorText())
	require.NoError(t, fetched.Validate())
}

func TestDocumentRepoListAndDelete(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	docs := repo.NewDocumentRepo(db)

	tenant := uuid.NewString()
	var ids []string
	for i := 0; i < 3; i++ {
		doc := newDoc(tenant)
		order, err := docs.NextDisplayOrder(ctx, tenant)
		require.NoError(t, err)
		doc.DisplayOrder = order
		require.NoError(t, docs.Create(ctx, doc))
		ids = append(ids, doc.ID)
	}

	list, err := docs.List(ctx, tenant, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, ids[0], list[0].ID)
	require.Equal(t, ids[2], list[2].ID)

	page, err := docs.List(ctx, tenant, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[1], page[0].ID)

	require.NoError(t, docs.SoftDelete(ctx, tenant, ids[0], time.Now().UnixMilli()))
	require.ErrorIs(t, docs.SoftDelete(ctx, tenant, ids[0], time.Now().UnixMilli()), appErr.ErrNotFound)
	n, err := docs.CountByTenant(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	purged, err := docs.PurgeDeleted(ctx, time.Now().Add(time.Minute).UnixMilli())
	require.NoError(t, err)
	require.GreaterOrEqual(t, purged, int64(1))
}

func TestTenantRepo(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	tenants := repo.NewTenantRepo(db)

	tn := &model.Tenant{
		ID:         uuid.NewString(),
		Name:       "acme",
		Collection: "tenant_acme",
		KeyPrefix:  "rk_" + uuid.NewString()[:8],
		KeyHash:    "hash",
		Active:     true,
		Ctime:      time.Now().UnixMilli(),
	}
	require.NoError(t, tenants.Create(ctx, tn))
	require.ErrorIs(t, tenants.Create(ctx, tn), appErr.ErrConflict)

	got, err := tenants.GetByKeyPrefix(ctx, tn.KeyPrefix)
	require.NoError(t, err)
	require.Equal(t, tn.ID, got.ID)
	_, err = tenants.GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

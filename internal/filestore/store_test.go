package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/ragdesk/internal/config"
	"github.com/xxxsen/ragdesk/internal/pkg/errors"
)

func newLocal(t *testing.T) (Store, string) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	return store, dir
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, dir := newLocal(t)
	ctx := context.Background()
	key := DocumentKey("t1", "d1", ".PDF")
	require.Equal(t, "tenants/t1/documents/d1.pdf", key)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, key, []byte("payload"), "application/pdf"))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = os.Stat(filepath.Join(dir, "tenants", "t1", "documents", "d1.pdf"))
	require.NoError(t, err)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, _ := newLocal(t)
	ctx := context.Background()
	for _, key := range []string{"", "../x", "a/../../x", "a\\b", "a//b"} {
		require.Error(t, store.Put(ctx, key, []byte("x"), ""), key)
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{})
	require.Error(t, err)
}

func TestDocumentKeyWithoutDot(t *testing.T) {
	require.Equal(t, "tenants/t/documents/d.txt", DocumentKey("t", "d", "txt"))
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLiteKV {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := store.DB().DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	if _, found, err := store.Get(ctx, KeyProfiles); err != nil || found {
		t.Fatalf("expected absent key, found=%v err=%v", found, err)
	}

	if err := store.Put(ctx, KeyProfiles, []byte(`[{"id":"p1"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	value, found, err := store.Get(ctx, KeyProfiles)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected key present")
	}
	if string(value) != `[{"id":"p1"}]` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestSQLiteKVPutReplaces(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	if err := store.Put(ctx, KeyCurrentUser, []byte(`"u1"`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, KeyCurrentUser, []byte(`"u2"`)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	value, found, err := store.Get(ctx, KeyCurrentUser)
	if err != nil || !found {
		t.Fatalf("get after replace: found=%v err=%v", found, err)
	}
	if string(value) != `"u2"` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestSQLiteKVDelete(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	if err := store.Put(ctx, KeyCurrentUser, []byte(`"u1"`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, KeyCurrentUser); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := store.Get(ctx, KeyCurrentUser); err != nil || found {
		t.Fatalf("expected key removed, found=%v err=%v", found, err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, KeyCurrentUser); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestMemoryKVIsolatesStoredBytes(t *testing.T) {
	store := NewMemoryKV()
	ctx := context.Background()

	original := []byte(`[1,2,3]`)
	if err := store.Put(ctx, KeyNotifications, original); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 'x'

	value, found, err := store.Get(ctx, KeyNotifications)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(value) != `[1,2,3]` {
		t.Fatalf("stored bytes were aliased: %s", value)
	}

	value[0] = 'y'
	again, _, err := store.Get(ctx, KeyNotifications)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if string(again) != `[1,2,3]` {
		t.Fatalf("returned bytes were aliased: %s", again)
	}
}

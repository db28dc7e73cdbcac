package storage

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

func TestLocalBlobStore_SaveAndOpen(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1718000000000) }

	ref, err := store.Save(context.Background(), "claims.csv", strings.NewReader("claim_id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "1718000000000-claims.csv", ref.Key)
	assert.Equal(t, "claims.csv", ref.Name)

	rc, err := store.Open(ref)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "claim_id\n1\n", string(body))
}

func TestLocalBlobStore_SameMillisecond(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(42) }

	first, err := store.Save(context.Background(), "a.csv", strings.NewReader("x"))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "a.csv", strings.NewReader("y"))
	require.NoError(t, err)

	assert.Equal(t, "42-a.csv", first.Key)
	assert.Equal(t, "42-a_1.csv", second.Key)
}

func TestLocalBlobStore_ConcurrentSameNameGetDistinctKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(42) }

	const n = 40
	refs := make([]types.BlobRef, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := store.Save(context.Background(), "a.csv", strings.NewReader(strconv.Itoa(i)))
			assert.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, ref := range refs {
		assert.False(t, seen[ref.Key], "key %s handed out twice", ref.Key)
		seen[ref.Key] = true

		rc, err := store.Open(ref)
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), string(body), "upload %d reads back its own bytes", i)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, n, "no temp files left behind")
}

func TestLocalBlobStore_EmptyContent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "empty.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, apperrors.IsIntake(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload must not leave files behind")
}

func TestLocalBlobStore_OpenMissing(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(types.BlobRef{Key: "1-missing.csv"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalBlobStore_PathRejectsTraversal(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/b.csv", ".upload-123"} {
		_, err := store.Path(key)
		assert.Truef(t, apperrors.IsValidation(err), "key %q", key)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"claims.csv":          "claims.csv",
		"../../etc/passwd":    "passwd",
		`C:\data\claims.csv`:  "claims.csv",
		"bad:name?.csv":       "bad_name_.csv",
		"...":                 "upload",
		".hidden.csv":         "hidden.csv",
		strings.Repeat("a", 120) + ".csv": strings.Repeat("a", 96) + ".csv",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}

package answerkey

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		file       string
	}{
		{"plain", "", "inst-1.json"},
		{"sealed", "s3cret", "inst-1.sealed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewFileStore(dir, tt.passphrase)
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "inst-1", sampleKey()))
			assert.FileExists(t, filepath.Join(dir, tt.file))

			k, err := store.Get(ctx, "inst-1")
			require.NoError(t, err)
			assert.Equal(t, sampleKey().Strings(), k.Strings())

			_, err = store.Get(ctx, "inst-2")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_InvalidID(t *testing.T) {
	store := NewFileStore(t.TempDir(), "")
	ctx := context.Background()

	assert.ErrorIs(t, store.Put(ctx, "../escape", sampleKey()), ErrInvalidInstance)
	for _, id := range []string{"", ".hidden", "a/b"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidInstance, id)
	}
}

func TestReadFile_SealedWithoutPassphrase(t *testing.T) {
	sealed, err := Seal(sampleKey(), "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "answer_key.sealed")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	_, err = ReadFile(path, "")
	assert.ErrorIs(t, err, ErrSealOpen)

	k, err := ReadFile(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, ".hidden")
	assert.ErrorIs(t, err, ErrInvalidInstance)

	require.NoError(t, store.Put(ctx, "a", sampleKey()))
	k, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())
}

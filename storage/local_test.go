package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) *LocalDriver {
	t.Helper()
	root := t.TempDir()
	return NewLocalDriver(root)
}

func TestFinalizeMovesStagingToContentAddress(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	w, err := d.OpenAppend(ctx, "uploads/u1/data")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	digest := "sha256:" + "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde"
	final, err := d.Finalize(ctx, "uploads/u1/data", digest)
	require.NoError(t, err)
	require.FileExists(t, final)

	_, err = os.Stat(filepath.Join(d.root, "uploads/u1/data"))
	require.True(t, os.IsNotExist(err))
}

func TestFinalizeDeduplicatesExistingContent(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	digest := "sha256:" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	w, _ := d.OpenAppend(ctx, "uploads/a/data")
	w.Write([]byte("first"))
	w.Close()
	first, err := d.Finalize(ctx, "uploads/a/data", digest)
	require.NoError(t, err)

	w, _ = d.OpenAppend(ctx, "uploads/b/data")
	w.Write([]byte("second-but-same-digest"))
	w.Close()
	second, err := d.Finalize(ctx, "uploads/b/data", digest)
	require.NoError(t, err)

	require.Equal(t, first, second)
	_, err = os.Stat(filepath.Join(d.root, "uploads/b/data"))
	require.True(t, os.IsNotExist(err))
}

func TestReadByteRange(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	digest := "sha256:" + "0000000000000000000000000000000000000000000000000000000000000a"

	w, _ := d.OpenAppend(ctx, "staging/x")
	w.Write([]byte("0123456789"))
	w.Close()
	_, err := d.Finalize(ctx, "staging/x", digest)
	require.NoError(t, err)

	rc, err := d.Read(ctx, digest, &ByteRange{Start: 2, End: 4})
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "234", string(got))
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	_, err := d.Read(ctx, "sha256:"+"1111111111111111111111111111111111111111111111111111111111111111", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	path, err := d.WriteManifest(ctx, "library/app", "sha256", "deadbeef", []byte(`{"schemaVersion":2}`))
	require.NoError(t, err)

	data, err := d.ReadManifest(ctx, path)
	require.NoError(t, err)
	require.JSONEq(t, `{"schemaVersion":2}`, string(data))

	require.NoError(t, d.DeleteManifest(ctx, path))
	_, err = d.ReadManifest(ctx, path)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirSizeSumsManifests(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)

	_, err := d.WriteManifest(ctx, "library/app", "sha256", "aaaa", []byte("12345"))
	require.NoError(t, err)
	_, err = d.WriteManifest(ctx, "library/app", "sha256", "bbbb", []byte("1234567890"))
	require.NoError(t, err)

	size, err := d.DirSize(ctx, "library/app")
	require.NoError(t, err)
	require.Equal(t, int64(15), size)
}

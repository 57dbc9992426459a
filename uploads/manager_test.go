package uploads

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/digest"
	"github.com/PThorpe92/Floundr/storage"
)

func newTestManager(t *testing.T) (*Manager, *catalog.Store, *catalog.Repository) {
	t.Helper()
	store, err := catalog.Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	driver := storage.NewLocalDriver(t.TempDir())
	repo, err := store.CreateRepository(context.Background(), "library/app", false)
	require.NoError(t, err)

	m, err := New(context.Background(), store, driver, DefaultHorizon)
	require.NoError(t, err)
	return m, store, repo
}

func TestOpenAppendCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _, repo := newTestManager(t)

	s, err := m.Open(ctx, repo, digest.SHA256)
	require.NoError(t, err)

	n, err := m.Append(ctx, s, 0, strings.NewReader("hello "))
	require.NoError(t, err)
	require.Equal(t, int64(6), n)

	n, err = m.Append(ctx, s, 6, strings.NewReader("world"))
	require.NoError(t, err)
	require.Equal(t, int64(11), n)

	want, _ := digest.Of(digest.SHA256, []byte("hello world"))
	final, err := m.Commit(ctx, s, want.String())
	require.NoError(t, err)
	require.NotEmpty(t, final)

	require.Nil(t, m.Get(s.UUID))
}

func TestAppendRejectsOutOfOrderChunk(t *testing.T) {
	ctx := context.Background()
	m, _, repo := newTestManager(t)

	s, err := m.Open(ctx, repo, digest.SHA256)
	require.NoError(t, err)

	_, err = m.Append(ctx, s, 5, strings.NewReader("oops"))
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestCommitRejectsMismatchedDigest(t *testing.T) {
	ctx := context.Background()
	m, _, repo := newTestManager(t)

	s, err := m.Open(ctx, repo, digest.SHA256)
	require.NoError(t, err)
	_, err = m.Append(ctx, s, 0, strings.NewReader("data"))
	require.NoError(t, err)

	_, err = m.Commit(ctx, s, "sha256:"+strings.Repeat("0", 64))
	require.ErrorIs(t, err, digest.ErrMismatch)

	require.Nil(t, m.Get(s.UUID))
}

func TestCancelDiscardsSession(t *testing.T) {
	ctx := context.Background()
	m, _, repo := newTestManager(t)

	s, err := m.Open(ctx, repo, digest.SHA256)
	require.NoError(t, err)
	_, err = m.Append(ctx, s, 0, strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, s))
	require.Nil(t, m.Get(s.UUID))
}

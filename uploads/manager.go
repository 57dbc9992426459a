// Package uploads implements the Upload Session Manager component: the
// chunked, resumable blob upload state machine (None -> Open ->
// Committed/Cancelled), serialized per session so concurrent PATCH
// requests against the same upload UUID never interleave their writes.
package uploads

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	satoriuuid "github.com/satori/go.uuid"

	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/digest"
	"github.com/PThorpe92/Floundr/internal/dcontext"
	"github.com/PThorpe92/Floundr/storage"
)

// DefaultHorizon is the age past which recover discards an orphaned
// upload rather than reattaching it, matching spec.md §4.4's "a startup
// sweep removes uploads older than a configurable horizon (default
// 24h)".
const DefaultHorizon = 24 * time.Hour

// ErrOutOfOrder is returned when a PATCH chunk does not begin exactly at
// the end of what has already been staged, enforcing the contiguous-
// range invariant chunked uploads depend on.
var ErrOutOfOrder = fmt.Errorf("uploads: chunk does not begin at current offset")

// ErrWrongState is returned when an operation is attempted against an
// upload session that is not in the state it requires (committing a
// cancelled upload, patching a committed one).
var ErrWrongState = fmt.Errorf("uploads: upload is not in the required state")

// Session tracks one in-progress chunked upload. Its hasher is rebuilt
// from the staging file's contents on process restart rather than
// persisted, per the design note that hash state does not survive a
// crash — only the bytes on disk do.
type Session struct {
	mu     sync.Mutex
	UUID   string
	RepoID int64
	Repo   string
	Path   string
	Algo   digest.Algorithm
	hasher *digest.Hasher
	offset int64
}

// Manager owns every in-progress Session, keyed by UUID, and is the sole
// writer of catalog upload rows — handlers never touch the catalog's
// uploads table directly.
type Manager struct {
	store   *catalog.Store
	driver  storage.Driver
	horizon time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs a Manager and sweeps the catalog for upload sessions
// left open by a previous process, rebuilding their hash state from the
// staging files still on disk. Uploads whose last activity is older
// than horizon are discarded instead of reattached; a horizon <= 0 falls
// back to DefaultHorizon.
func New(ctx context.Context, store *catalog.Store, driver storage.Driver, horizon time.Duration) (*Manager, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	m := &Manager{store: store, driver: driver, horizon: horizon, sessions: make(map[string]*Session)}
	if err := m.recover(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) recover(ctx context.Context) error {
	stale, err := m.store.ListStaleUploads(ctx)
	if err != nil {
		return fmt.Errorf("uploads: recovering sessions: %w", err)
	}
	cutoff := time.Now().Add(-m.horizon)
	for _, u := range stale {
		if u.UpdatedAt.Before(cutoff) {
			if err := m.driver.DeleteStaging(ctx, u.FilePath); err != nil {
				dcontext.GetLogger(ctx).WithError(err).Warn("uploads: failed to discard staging file for orphaned upload")
			}
			if err := m.store.DeleteUpload(ctx, u.UUID); err != nil {
				dcontext.GetLogger(ctx).WithError(err).Warn("uploads: failed to delete orphaned upload row")
			}
			continue
		}

		repo, err := m.store.GetRepositoryByID(ctx, u.RepositoryID)
		if err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warn("uploads: dropping upload with missing repository")
			continue
		}
		s := &Session{
			UUID:   u.UUID,
			RepoID: u.RepositoryID,
			Repo:   repo.Name,
			Path:   u.FilePath,
			Algo:   digest.Algorithm(u.DigestAlgorithm),
		}
		size, err := m.driver.StageSize(ctx, u.FilePath)
		if err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warn("uploads: dropping upload, staging file unreadable")
			continue
		}
		rc, err := m.driver.OpenReadStaging(ctx, u.FilePath)
		if err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warn("uploads: dropping upload, cannot reopen staging file")
			continue
		}
		h, err := digest.Rehash(s.Algo, rc)
		rc.Close()
		if err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warn("uploads: rehash failed")
			continue
		}
		s.hasher = h
		s.offset = size
		m.sessions[u.UUID] = s
	}
	return nil
}

// Open begins a new upload session for repo, returning its UUID.
func (m *Manager) Open(ctx context.Context, repo *catalog.Repository, algo digest.Algorithm) (*Session, error) {
	id := satoriuuid.NewV4().String()
	path := fmt.Sprintf("uploads/%s/data", id)

	hasher, err := digest.NewHasher(algo)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.CreateUpload(ctx, repo.ID, id, path, string(algo)); err != nil {
		return nil, fmt.Errorf("uploads: opening session: %w", err)
	}

	s := &Session{
		UUID:   id,
		RepoID: repo.ID,
		Repo:   repo.Name,
		Path:   path,
		Algo:   algo,
		hasher: hasher,
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the in-memory session for uuid, or nil if no open session
// exists with that id.
func (m *Manager) Get(uuid string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[uuid]
}

// Offset reports how many bytes have been staged for s so far, used by
// the upload-status and PATCH response Range header.
func (s *Session) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Append writes chunk to the session's staging file starting at
// startOffset, enforcing that startOffset matches the current end of
// stream.
func (m *Manager) Append(ctx context.Context, s *Session, startOffset int64, chunk io.Reader) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if startOffset != s.offset {
		return 0, ErrOutOfOrder
	}

	w, err := m.driver.OpenAppend(ctx, s.Path)
	if err != nil {
		return 0, fmt.Errorf("uploads: opening staging file: %w", err)
	}
	defer w.Close()

	n, err := io.Copy(io.MultiWriter(w, s.hasher), chunk)
	if err != nil {
		return 0, fmt.Errorf("uploads: writing chunk: %w", err)
	}
	s.offset += n

	if err := m.store.AdvanceUpload(ctx, s.UUID, s.offset); err != nil {
		return 0, fmt.Errorf("uploads: recording chunk: %w", err)
	}
	return s.offset, nil
}

// Commit verifies the declared digest against the session's running
// hash and finalizes the staging file into content-addressed storage,
// transitioning the session to Committed. A digest mismatch is fatal to
// the session: the staging file and upload row are discarded exactly as
// Cancel discards them, and the client must restart with a fresh UUID.
func (m *Manager) Commit(ctx context.Context, s *Session, declaredDigest string) (string, error) {
	s.mu.Lock()
	actual := s.hasher.Finalize()
	verifyErr := digest.Verify(declaredDigest, actual)
	s.mu.Unlock()

	if verifyErr != nil {
		if err := m.Cancel(ctx, s); err != nil {
			dcontext.GetLogger(ctx).WithError(err).Warn("uploads: failed to discard session after digest mismatch")
		}
		return "", verifyErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final, err := m.driver.Finalize(ctx, s.Path, actual.String())
	if err != nil {
		return "", fmt.Errorf("uploads: finalizing blob: %w", err)
	}
	if err := m.store.CompleteUpload(ctx, s.UUID); err != nil {
		return "", fmt.Errorf("uploads: completing session: %w", err)
	}
	if err := m.store.DeleteUpload(ctx, s.UUID); err != nil {
		dcontext.GetLogger(ctx).WithError(err).Warn("uploads: failed to clean up committed session row")
	}

	m.mu.Lock()
	delete(m.sessions, s.UUID)
	m.mu.Unlock()

	return final, nil
}

// Cancel discards a session's staging file and marks it cancelled.
func (m *Manager) Cancel(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := m.driver.DeleteStaging(ctx, s.Path); err != nil {
		return fmt.Errorf("uploads: discarding staging file: %w", err)
	}
	if err := m.store.CancelUpload(ctx, s.UUID); err != nil {
		return fmt.Errorf("uploads: cancelling session: %w", err)
	}
	if err := m.store.DeleteUpload(ctx, s.UUID); err != nil {
		dcontext.GetLogger(ctx).WithError(err).Warn("uploads: failed to clean up cancelled session row")
	}

	m.mu.Lock()
	delete(m.sessions, s.UUID)
	m.mu.Unlock()

	return nil
}

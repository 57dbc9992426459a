package catalog

import (
	"context"
	"fmt"
)

// CreateUpload opens a new upload session row, matching storage.rs's
// new_session insert of (repository_id, uuid).
func (s *Store) CreateUpload(ctx context.Context, repoID int64, uuid, filePath, digestAlgorithm string) (*Upload, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (repository_id, uuid, file_path, digest_algorithm) VALUES (?, ?, ?, ?)`,
		repoID, uuid, filePath, digestAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUploadByID(ctx, id)
}

func (s *Store) GetUploadByID(ctx context.Context, id int64) (*Upload, error) {
	var u Upload
	if err := s.db.GetContext(ctx, &u, `SELECT * FROM uploads WHERE id = ?`, id); err != nil {
		return nil, wrapScanErr(err)
	}
	return &u, nil
}

// GetUpload resolves an in-progress session by its session UUID.
func (s *Store) GetUpload(ctx context.Context, uuid string) (*Upload, error) {
	var u Upload
	if err := s.db.GetContext(ctx, &u, `SELECT * FROM uploads WHERE uuid = ?`, uuid); err != nil {
		return nil, wrapScanErr(err)
	}
	return &u, nil
}

// AdvanceUpload records that a chunk was written, bumping chunk_count,
// recording the staging file's new size in size_at_last_chunk and
// refreshing updated_at. Startup recovery does not read
// size_at_last_chunk: it takes the staging file's size from the driver
// and rehashes the staged bytes.
func (s *Store) AdvanceUpload(ctx context.Context, uuid string, newSize int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET chunk_count = chunk_count + 1, size_at_last_chunk = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE uuid = ? AND state = ?`, newSize, uuid, UploadOpen)
	if err != nil {
		return fmt.Errorf("catalog: advancing upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteUpload transitions an upload session to committed, matching
// dbPutBlobUploadComplete's state transition in the upload handler.
func (s *Store) CompleteUpload(ctx context.Context, uuid string) error {
	return s.transitionUpload(ctx, uuid, UploadCommitted)
}

// CancelUpload transitions an upload session to cancelled.
func (s *Store) CancelUpload(ctx context.Context, uuid string) error {
	return s.transitionUpload(ctx, uuid, UploadCancelled)
}

func (s *Store) transitionUpload(ctx context.Context, uuid string, to UploadState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE uuid = ? AND state = ?`,
		to, uuid, UploadOpen)
	if err != nil {
		return fmt.Errorf("catalog: transitioning upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUpload removes the session row entirely, used once its staging
// file has been finalized or discarded and there is no further reason to
// keep the record around.
func (s *Store) DeleteUpload(ctx context.Context, uuid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("catalog: deleting upload: %w", err)
	}
	return nil
}

// ListStaleUploads returns every still-open upload, used by the startup
// sweep that reconstructs the in-memory session manager state (and hash
// state, via digest.Rehash) from the catalog and the staging files left
// on disk after a restart.
func (s *Store) ListStaleUploads(ctx context.Context) ([]Upload, error) {
	var rows []Upload
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM uploads WHERE state = ?`, UploadOpen)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing open uploads: %w", err)
	}
	return rows, nil
}

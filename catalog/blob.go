package catalog

import (
	"context"
	"fmt"
)

// BlobExists reports whether digest has already been linked into repo,
// mirroring the original implementation's COUNT(*) existence check used
// to short-circuit a redundant push.
func (s *Store) BlobExists(ctx context.Context, repo, digest string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM blobs JOIN repositories r ON r.id = blobs.repository_id
		 WHERE r.name = ? AND blobs.digest = ?`, repo, digest)
	if err != nil {
		return false, fmt.Errorf("catalog: checking blob existence: %w", err)
	}
	return count > 0, nil
}

// CreateBlob links digest into repo at filePath, matching storage.rs's
// write_blob insert (repository_id, digest, file_path). Each successful
// call bumps ref_count by one, whether it creates the row or updates an
// existing one — the transactional upsert §5 names as the mechanism
// that keeps concurrent commits of the same digest counted exactly once
// apiece.
func (s *Store) CreateBlob(ctx context.Context, repoID int64, digest, mediaType, filePath string, size int64) (*Blob, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (repository_id, digest, media_type, size, file_path, ref_count) VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (repository_id, digest) DO UPDATE SET file_path = excluded.file_path, ref_count = blobs.ref_count + 1`,
		repoID, digest, mediaType, size, filePath)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating blob: %w", err)
	}
	var b Blob
	if err := s.db.GetContext(ctx, &b, `SELECT * FROM blobs WHERE repository_id = ? AND digest = ?`, repoID, digest); err != nil {
		return nil, wrapScanErr(err)
	}
	return &b, nil
}

func (s *Store) GetBlobByID(ctx context.Context, id int64) (*Blob, error) {
	var b Blob
	if err := s.db.GetContext(ctx, &b, `SELECT * FROM blobs WHERE id = ?`, id); err != nil {
		return nil, wrapScanErr(err)
	}
	return &b, nil
}

// GetBlob resolves digest within repo, matching storage.rs's read_blob
// join of blobs to repositories by name.
func (s *Store) GetBlob(ctx context.Context, repo, digest string) (*Blob, error) {
	var b Blob
	err := s.db.GetContext(ctx, &b,
		`SELECT blobs.* FROM blobs JOIN repositories r ON r.id = blobs.repository_id
		 WHERE r.name = ? AND blobs.digest = ?`, repo, digest)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &b, nil
}

// MountBlob links an existing digest (already stored under some
// repository) into target without re-uploading content, matching the
// cross-repository mount path in storage.rs's mount_blob.
func (s *Store) MountBlob(ctx context.Context, target *Repository, digest string) (*Blob, error) {
	existing, err := s.GetBlobAnyRepository(ctx, digest)
	if err != nil {
		return nil, err
	}
	return s.CreateBlob(ctx, target.ID, digest, existing.MediaType, existing.FilePath, existing.Size)
}

// GetBlobAnyRepository resolves digest regardless of which repository it
// was originally pushed under, used as the mount source lookup.
func (s *Store) GetBlobAnyRepository(ctx context.Context, digest string) (*Blob, error) {
	var b Blob
	err := s.db.GetContext(ctx, &b, `SELECT * FROM blobs WHERE digest = ? LIMIT 1`, digest)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &b, nil
}

// DeleteBlob removes the catalog row for digest within repo. The
// underlying storage object is left alone; the caller decides afterward,
// from TotalReferenceCount, whether to delete it.
func (s *Store) DeleteBlob(ctx context.Context, repo, digest string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE digest = ? AND repository_id = (SELECT id FROM repositories WHERE name = ?)`,
		digest, repo)
	if err != nil {
		return fmt.Errorf("catalog: deleting blob: %w", err)
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

// ReferenceCount returns the maintained ref_count for repo's blob row
// matching digest — the per-blob invariant (§3/§5) kept in sync by
// CreateBlob's upsert rather than recomputed from manifest_layers on
// every read. A blob with no row in repo has a reference count of zero.
func (s *Store) ReferenceCount(ctx context.Context, repo, digest string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT blobs.ref_count FROM blobs JOIN repositories r ON r.id = blobs.repository_id
		 WHERE r.name = ? AND blobs.digest = ?`, repo, digest)
	if err != nil {
		if wrapScanErr(err) == ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("catalog: reading blob reference count: %w", err)
	}
	return count, nil
}

// TotalReferenceCount sums ref_count across every repository's blob row
// for digest. Because content-addressed storage is deduplicated by
// digest regardless of which repository pushed or mounted it, this
// (rather than the per-repository ReferenceCount) is what decides
// whether the underlying storage object is safe to delete.
func (s *Store) TotalReferenceCount(ctx context.Context, digest string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COALESCE(SUM(ref_count), 0) FROM blobs WHERE digest = ?`, digest)
	if err != nil {
		return 0, fmt.Errorf("catalog: summing blob reference counts: %w", err)
	}
	return count, nil
}

package catalog

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PutManifest persists a manifest row and its layer references in one
// transaction, matching storage.rs's write_manifest insert combined with
// the layer linkage push_manifest performs.
func (s *Store) PutManifest(ctx context.Context, repoID int64, digest, mediaType, filePath string, size int64, subjectDigest *string, blobIDs []int64) (*Manifest, error) {
	var m Manifest
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO manifests (repository_id, digest, media_type, subject_digest, size, file_path)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (repository_id, digest) DO UPDATE SET file_path = excluded.file_path, size = excluded.size`,
			repoID, digest, mediaType, subjectDigest, size, filePath)
		if err != nil {
			return fmt.Errorf("catalog: inserting manifest: %w", err)
		}
		// LastInsertId is not reliable here: when the upsert takes the
		// DO UPDATE path SQLite leaves it at the previous insert's rowid.
		if err := tx.GetContext(ctx, &m, `SELECT * FROM manifests WHERE repository_id = ? AND digest = ?`, repoID, digest); err != nil {
			return err
		}
		id := m.ID
		for _, blobID := range blobIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO manifest_layers (manifest_id, blob_id) VALUES (?, ?)
				 ON CONFLICT (manifest_id, blob_id) DO NOTHING`, id, blobID); err != nil {
				return fmt.Errorf("catalog: linking manifest layer: %w", err)
			}
		}
		if m.ID == 0 {
			if err := tx.GetContext(ctx, &m, `SELECT * FROM manifests WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetManifestByDigest resolves a manifest by its content digest within
// repo, matching get_manifest's digest-based branch.
func (s *Store) GetManifestByDigest(ctx context.Context, repo, digest string) (*Manifest, error) {
	var m Manifest
	err := s.db.GetContext(ctx, &m,
		`SELECT manifests.* FROM manifests JOIN repositories r ON r.id = manifests.repository_id
		 WHERE r.name = ? AND manifests.digest = ?`, repo, digest)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &m, nil
}

// GetManifestByTag resolves a manifest via a tag name within repo,
// matching get_manifest's tag-based branch (tags joined to manifests).
func (s *Store) GetManifestByTag(ctx context.Context, repo, tag string) (*Manifest, error) {
	var m Manifest
	err := s.db.GetContext(ctx, &m,
		`SELECT manifests.* FROM manifests
		 JOIN tags t ON t.manifest_id = manifests.id
		 JOIN repositories r ON r.id = t.repository_id
		 WHERE r.name = ? AND t.tag = ?`, repo, tag)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &m, nil
}

// Resolve looks reference up as a tag first, falling back to a digest,
// matching the reference-resolution order the GET/HEAD manifest endpoint
// uses.
func (s *Store) Resolve(ctx context.Context, repo, reference string) (*Manifest, error) {
	if m, err := s.GetManifestByTag(ctx, repo, reference); err == nil {
		return m, nil
	} else if err != ErrNotFound {
		return nil, err
	}
	return s.GetManifestByDigest(ctx, repo, reference)
}

// DeleteManifest removes the manifest row (and its layer links and any
// tags pointing at it) for digest within repo, decrementing the
// ref_count of every blob it referenced in the same transaction.
func (s *Store) DeleteManifest(ctx context.Context, repo, digest string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var m Manifest
		err := tx.GetContext(ctx, &m,
			`SELECT manifests.* FROM manifests JOIN repositories r ON r.id = manifests.repository_id
			 WHERE r.name = ? AND manifests.digest = ?`, repo, digest)
		if err != nil {
			return wrapScanErr(err)
		}
		var blobIDs []int64
		if err := tx.SelectContext(ctx, &blobIDs, `SELECT blob_id FROM manifest_layers WHERE manifest_id = ?`, m.ID); err != nil {
			return fmt.Errorf("catalog: listing manifest layers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE manifest_id = ?`, m.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_layers WHERE manifest_id = ?`, m.ID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM manifests WHERE id = ?`, m.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		for _, blobID := range blobIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count - 1 WHERE id = ? AND ref_count > 0`, blobID); err != nil {
				return fmt.Errorf("catalog: decrementing blob ref count: %w", err)
			}
		}
		return nil
	})
}

// Referrers returns every manifest within repo whose subject_digest
// points at subject, optionally restricted to artifactType.
func (s *Store) Referrers(ctx context.Context, repo, subject, artifactType string) ([]Manifest, error) {
	query := `SELECT manifests.* FROM manifests JOIN repositories r ON r.id = manifests.repository_id
		WHERE r.name = ? AND manifests.subject_digest = ?`
	args := []interface{}{repo, subject}
	if artifactType != "" {
		query += ` AND manifests.media_type = ?`
		args = append(args, artifactType)
	}
	var rows []Manifest
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog: listing referrers: %w", err)
	}
	return rows, nil
}

package catalog

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateRepository inserts a new repository, matching the original
// create_new_repo semantics (name plus a public/private flag set at
// creation time).
func (s *Store) CreateRepository(ctx context.Context, name string, isPublic bool) (*Repository, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (name, is_public) VALUES (?, ?)`, name, isPublic)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("catalog: creating repository: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRepositoryByID(ctx, id)
}

// GetOrCreateRepository returns the named repository, creating it
// (private by default) if it does not yet exist. Used by the blob and
// manifest push paths, which must not require a separate repository
// creation step.
func (s *Store) GetOrCreateRepository(ctx context.Context, name string) (*Repository, error) {
	repo, err := s.GetRepositoryByName(ctx, name)
	if err == nil {
		return repo, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	repo, err = s.CreateRepository(ctx, name, false)
	if err != nil && err == ErrConflict {
		return s.GetRepositoryByName(ctx, name)
	}
	return repo, err
}

func (s *Store) GetRepositoryByID(ctx context.Context, id int64) (*Repository, error) {
	var r Repository
	err := s.db.GetContext(ctx, &r, `SELECT * FROM repositories WHERE id = ?`, id)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &r, nil
}

func (s *Store) GetRepositoryByName(ctx context.Context, name string) (*Repository, error) {
	var r Repository
	err := s.db.GetContext(ctx, &r, `SELECT * FROM repositories WHERE name = ?`, name)
	if err != nil {
		return nil, wrapScanErr(err)
	}
	return &r, nil
}

// IsPublic reports whether name is a public repository, used by the
// unauthenticated-pull check in the auth middleware. A missing
// repository is treated as not public.
func (s *Store) IsPublic(ctx context.Context, name string) bool {
	var isPublic bool
	err := s.db.GetContext(ctx, &isPublic, `SELECT is_public FROM repositories WHERE name = ?`, name)
	return err == nil && isPublic
}

// ListRepositories returns every repository and its aggregate counts,
// matching list_repositories; publicOnly restricts the result to
// is_public rows.
func (s *Store) ListRepositories(ctx context.Context, publicOnly bool) ([]RepositoryStats, error) {
	query := `SELECT id, name, is_public, created_at,
		(SELECT COUNT(*) FROM blobs WHERE blobs.repository_id = repositories.id) AS blob_count,
		(SELECT COUNT(*) FROM tags WHERE tags.repository_id = repositories.id) AS tag_count,
		(SELECT COUNT(*) FROM manifests m WHERE m.repository_id = repositories.id) AS manifest_count
		FROM repositories`
	args := []interface{}{}
	if publicOnly {
		query += " WHERE is_public = 1"
	}
	var rows []RepositoryStats
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog: listing repositories: %w", err)
	}
	for i := range rows {
		var tags []string
		if err := s.db.SelectContext(ctx, &tags,
			`SELECT tag FROM tags WHERE repository_id = ?`, rows[i].ID); err != nil {
			return nil, fmt.Errorf("catalog: listing repository tags: %w", err)
		}
		rows[i].Tags = tags
	}
	return rows, nil
}

// DeleteRepository removes a repository and everything scoped under it.
// Blob and manifest file deletion on the storage driver is the caller's
// responsibility; this only removes catalog rows.
func (s *Store) DeleteRepository(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var repo Repository
		err := tx.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE name = ?`, name)
		if err != nil {
			return wrapScanErr(err)
		}
		for _, stmt := range []string{
			`DELETE FROM tags WHERE repository_id = ?`,
			`DELETE FROM manifest_layers WHERE manifest_id IN (SELECT id FROM manifests WHERE repository_id = ?)`,
			`DELETE FROM manifests WHERE repository_id = ?`,
			`DELETE FROM blobs WHERE repository_id = ?`,
			`DELETE FROM uploads WHERE repository_id = ?`,
			`DELETE FROM repository_scopes WHERE repository_id = ?`,
			`DELETE FROM repositories WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, repo.ID); err != nil {
				return fmt.Errorf("catalog: deleting repository: %w", err)
			}
		}
		return nil
	})
}

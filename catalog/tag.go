package catalog

import (
	"context"
	"fmt"
)

// PutTag binds tag to manifestID within repoID, updating the binding if
// the tag name already exists (re-pushing the same tag to a new
// digest), matching push_manifest's tag upsert.
func (s *Store) PutTag(ctx context.Context, repoID, manifestID int64, tag string) (*Tag, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (repository_id, manifest_id, tag) VALUES (?, ?, ?)
		 ON CONFLICT (repository_id, tag) DO UPDATE SET manifest_id = excluded.manifest_id, updated_at = CURRENT_TIMESTAMP`,
		repoID, manifestID, tag)
	if err != nil {
		return nil, fmt.Errorf("catalog: tagging manifest: %w", err)
	}
	var t Tag
	if err := s.db.GetContext(ctx, &t, `SELECT * FROM tags WHERE repository_id = ? AND tag = ?`, repoID, tag); err != nil {
		return nil, wrapScanErr(err)
	}
	return &t, nil
}

// ListTags returns tag names for repo in lexicographic order, matching
// get_tags_list's ORDER BY tags.tag COLLATE NOCASE. If last is non-empty,
// only tags sorting after it are returned; if n is positive, the result
// is capped at n rows — the pagination contract the Link header follows.
func (s *Store) ListTags(ctx context.Context, repo string, n int, last string) ([]string, error) {
	query := `SELECT tags.tag FROM tags JOIN repositories r ON r.id = tags.repository_id
		WHERE r.name = ?`
	args := []interface{}{repo}
	if last != "" {
		query += ` AND tags.tag > ?`
		args = append(args, last)
	}
	query += ` ORDER BY tags.tag COLLATE NOCASE`
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	var tags []string
	if err := s.db.SelectContext(ctx, &tags, query, args...); err != nil {
		return nil, fmt.Errorf("catalog: listing tags: %w", err)
	}
	return tags, nil
}

// DeleteTag removes a tag binding within repo, matching delete_tag.
func (s *Store) DeleteTag(ctx context.Context, repo, tag string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE tag = ? AND repository_id = (SELECT id FROM repositories WHERE name = ?)`,
		tag, repo)
	if err != nil {
		return fmt.Errorf("catalog: deleting tag: %w", err)
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

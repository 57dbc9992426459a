package catalog

import (
	"context"
	"fmt"
	"time"
)

// IssueToken records that tokenString was handed to account (optionally on
// behalf of clientID) carrying scope, expiring at expiresAt. Called after
// the Auth component has already signed the JWT; this is the audit trail,
// not the validation path.
func (s *Store) IssueToken(ctx context.Context, tokenString, account string, clientID *string, scope string, expiresAt time.Time) (*Token, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, account, client_id, scope, expires_at) VALUES (?, ?, ?, ?, ?)`,
		tokenString, account, clientID, scope, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("catalog: issuing token: %w", err)
	}
	var t Token
	if err := s.db.GetContext(ctx, &t, `SELECT * FROM tokens WHERE token = ?`, tokenString); err != nil {
		return nil, wrapScanErr(err)
	}
	return &t, nil
}

// GetToken resolves a previously issued token by its string value.
func (s *Store) GetToken(ctx context.Context, tokenString string) (*Token, error) {
	var t Token
	if err := s.db.GetContext(ctx, &t, `SELECT * FROM tokens WHERE token = ?`, tokenString); err != nil {
		return nil, wrapScanErr(err)
	}
	return &t, nil
}

// RevokeToken deletes a token's audit row, making it ineligible for reuse
// by any lookup that checks token presence (the JWT signature itself
// remains valid until it expires; this only removes the registry's
// record that it should still be honored).
func (s *Store) RevokeToken(ctx context.Context, tokenString string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, tokenString)
	if err != nil {
		return fmt.Errorf("catalog: revoking token: %w", err)
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

// ListTokensForAccount returns every unexpired token issued to account.
func (s *Store) ListTokensForAccount(ctx context.Context, account string) ([]Token, error) {
	var tokens []Token
	err := s.db.SelectContext(ctx, &tokens,
		`SELECT * FROM tokens WHERE account = ? AND expires_at > CURRENT_TIMESTAMP ORDER BY issued_at DESC`, account)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing tokens: %w", err)
	}
	return tokens, nil
}

// SweepExpiredTokens removes every token row past its expiry, matching
// the startup-sweep idiom the upload session manager uses for stale
// uploads (§7's crash-recovery disposition applies equally to audit
// rows that no longer describe a live credential).
func (s *Store) SweepExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("catalog: sweeping expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

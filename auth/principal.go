// Package auth implements the Auth & Scope component: the Basic+Bearer
// handshake, bearer token issuance with narrowed scope claims, and the
// per-request authorization check every /v2/ route runs before
// dispatching to the registry core.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/PThorpe92/Floundr/catalog"
)

// Method names which half of the Basic+Bearer handshake authenticated a
// request.
type Method int

const (
	MethodAnonymous Method = iota
	MethodBasic
	MethodBearer
)

// Principal is the authenticated (or anonymous) caller of a request,
// carrying whatever the Basic or Bearer path was able to establish.
type Principal struct {
	Method   Method
	Account  string
	User     *catalog.User
	ClientID string
	Scopes   []Scope // populated only for MethodBearer
}

// IsAdmin reports whether the principal's user row is an administrator.
func (p *Principal) IsAdmin() bool {
	return p.User != nil && p.User.IsAdmin
}

// Anonymous constructs the zero-value principal every unauthenticated
// request carries, matching the original auth_middleware's
// Auth::default() fallthrough for public routes and public repositories.
func Anonymous() *Principal {
	return &Principal{Method: MethodAnonymous}
}

// Authenticator ties the catalog (for Basic credential and admin
// lookups) to an Issuer (for Bearer verification).
type Authenticator struct {
	store  *catalog.Store
	issuer *Issuer
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(store *catalog.Store, issuer *Issuer) *Authenticator {
	return &Authenticator{store: store, issuer: issuer}
}

// ErrBadCredentials is returned when a Basic or Bearer header is present
// but fails to authenticate.
var ErrBadCredentials = errors.New("auth: invalid credentials")

// Authenticate inspects an Authorization header value (which may be
// empty) and returns the resulting Principal. An empty header is not an
// error: it resolves to the anonymous principal, and authorization
// decides from there whether the request may proceed.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if header == "" {
		return Anonymous(), nil
	}
	if token, ok := ParseBearerToken(header); ok {
		claims, err := a.issuer.Verify(token)
		if err != nil {
			return nil, ErrBadCredentials
		}
		p := &Principal{Method: MethodBearer, Account: claims.Subject, ClientID: claims.ClientID, Scopes: claims.Scopes()}
		if u, err := a.store.GetUserByEmail(ctx, claims.Subject); err == nil {
			p.User = u
		}
		return p, nil
	}
	if user, password, ok := ParseBasicCredentials(header); ok {
		u, err := a.store.VerifyLogin(ctx, user, password)
		if err != nil {
			return nil, ErrBadCredentials
		}
		return &Principal{Method: MethodBasic, Account: u.Email, User: u}, nil
	}
	return nil, ErrBadCredentials
}

// Authorize reports whether principal may perform action against repo,
// matching the per-request scope check §4.6 requires: admins pass
// unconditionally, anonymous pull is permitted on public repositories,
// a Bearer principal is checked against its carried scope claims, and a
// Basic principal (the backward-compatible path §4.6 names) is checked
// directly against the catalog's repository_scopes rows.
func (a *Authenticator) Authorize(ctx context.Context, p *Principal, repo string, action Action) (bool, error) {
	if p.IsAdmin() {
		return true, nil
	}
	if action == ActionPull && a.store.IsPublic(ctx, repo) {
		return true, nil
	}
	switch p.Method {
	case MethodBearer:
		for _, s := range p.Scopes {
			if s.Type == "repository" && s.Name == repo && s.Allows(action) {
				return true, nil
			}
		}
		return false, nil
	case MethodBasic:
		r, err := a.store.GetRepositoryByName(ctx, repo)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				// No repository yet: any authenticated user may push/pull
				// to create it, matching the Bearer-path new-repo grant.
				return action == ActionPull || action == ActionPush, nil
			}
			return false, fmt.Errorf("auth: resolving repository: %w", err)
		}
		csv, err := a.store.ScopeActions(ctx, p.User.ID, r.ID)
		if err != nil {
			return false, fmt.Errorf("auth: reading scope: %w", err)
		}
		for _, have := range actionsFromCSV(csv) {
			if have == action {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// AuthorizeCatalog reports whether principal may list /v2/_catalog,
// which §4.6 and §9's open-question resolution restrict to admins only.
func (a *Authenticator) AuthorizeCatalog(p *Principal) bool {
	return p.IsAdmin()
}

// Issuer exposes the underlying token issuer so the router can mount the
// /token endpoint without duplicating the Authenticator's catalog handle.
func (a *Authenticator) Issuer() *Issuer {
	return a.issuer
}

// Store exposes the underlying catalog store, used by the /token handler
// to look up the authenticating user before narrowing scopes.
func (a *Authenticator) Store() *catalog.Store {
	return a.store
}

package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateEmptyHeaderIsAnonymous(t *testing.T) {
	store := openTestStore(t)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	p, err := a.Authenticate(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, MethodAnonymous, p.Method)
	require.False(t, p.IsAdmin())
}

func TestAuthenticateBasicCredentials(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	raw := base64.StdEncoding.EncodeToString([]byte("dev@example.com:hunter2"))
	p, err := a.Authenticate(ctx, "Basic "+raw)
	require.NoError(t, err)
	require.Equal(t, MethodBasic, p.Method)
	require.Equal(t, "dev@example.com", p.Account)
}

func TestAuthenticateBasicCredentialsRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	raw := base64.StdEncoding.EncodeToString([]byte("dev@example.com:wrong"))
	_, err = a.Authenticate(ctx, "Basic "+raw)
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateBearerToken(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	user, err := store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	scopes := []Scope{{Type: "repository", Name: "library/app", Actions: []Action{ActionPull}}}
	signed, _, err := iss.Issue(ctx, user.Email, nil, scopes)
	require.NoError(t, err)

	p, err := a.Authenticate(ctx, "Bearer "+signed)
	require.NoError(t, err)
	require.Equal(t, MethodBearer, p.Method)
	require.Equal(t, user.Email, p.Account)
	require.Len(t, p.Scopes, 1)
}

func TestAuthenticateGarbageHeaderIsRejected(t *testing.T) {
	store := openTestStore(t)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	_, err := a.Authenticate(context.Background(), "Digest whatever")
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthorizeAdminAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	admin, err := store.CreateUser(ctx, "root@example.com", "hunter2", true)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	p := &Principal{Method: MethodBasic, Account: admin.Email, User: admin}
	ok, err := a.Authorize(ctx, p, "library/anything", ActionDelete)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizeAnonymousPullOnPublicRepository(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.CreateRepository(ctx, "library/public", true)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	ok, err := a.Authorize(ctx, Anonymous(), "library/public", ActionPull)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizeAnonymousDeniedOnPrivateRepository(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.CreateRepository(ctx, "library/private", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	ok, err := a.Authorize(ctx, Anonymous(), "library/private", ActionPull)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeBearerChecksCarriedScopes(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.CreateRepository(ctx, "library/app", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	p := &Principal{
		Method: MethodBearer,
		Scopes: []Scope{{Type: "repository", Name: "library/app", Actions: []Action{ActionPull}}},
	}
	ok, err := a.Authorize(ctx, p, "library/app", ActionPull)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Authorize(ctx, p, "library/app", ActionPush)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeBasicAllowsPushToNewRepository(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	user, err := store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	p := &Principal{Method: MethodBasic, Account: user.Email, User: user}
	ok, err := a.Authorize(ctx, p, "library/brand-new", ActionPush)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Authorize(ctx, p, "library/brand-new", ActionDelete)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeBasicChecksScopeGrantOnExistingRepository(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	user, err := store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	repo, err := store.CreateRepository(ctx, "library/app", false)
	require.NoError(t, err)
	require.NoError(t, store.GrantScope(ctx, user.ID, repo.ID, "pull,push"))
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	p := &Principal{Method: MethodBasic, Account: user.Email, User: user}
	ok, err := a.Authorize(ctx, p, "library/app", ActionPush)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Authorize(ctx, p, "library/app", ActionDelete)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeCatalogRestrictedToAdmins(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	admin, err := store.CreateUser(ctx, "root@example.com", "hunter2", true)
	require.NoError(t, err)
	iss := NewIssuer(store, "test-secret", "registry-token-issuer", "registry")
	a := NewAuthenticator(store, iss)

	require.False(t, a.AuthorizeCatalog(Anonymous()))
	require.True(t, a.AuthorizeCatalog(&Principal{Method: MethodBasic, User: admin}))
}

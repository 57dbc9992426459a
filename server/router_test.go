package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/config"
	"github.com/PThorpe92/Floundr/storage"
)

func sha256Hex(p []byte) string {
	sum := sha256.Sum256(p)
	return hex.EncodeToString(sum[:])
}

// newTestApp builds a fully-wired App over an isolated in-memory catalog
// and a temp-dir local storage driver, bootstrapping an admin account so
// tests can authenticate with Basic credentials without going through the
// token endpoint first.
func newTestApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = "file::memory:?cache=shared"
	cfg.Storage.Root = t.TempDir()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AdminEmail = "admin@example.com"
	cfg.Auth.AdminPassword = "hunter2"
	cfg.RateLimit = config.RateLimit{RequestsPerSecond: 1000, Burst: 1000}

	app, err := NewApp(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	return app, NewRouter(app)
}

func basicAuthHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func adminHeader() string {
	return basicAuthHeader("admin@example.com", "hunter2")
}

func doRequest(handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVersionProbeRequiresAuthentication(t *testing.T) {
	_, handler := newTestApp(t)

	rec := doRequest(handler, http.MethodGet, "/v2/", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = doRequest(handler, http.MethodGet, "/v2/", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "registry/2.0", rec.Header().Get("Docker-Distribution-API-Version"))
}

// TestMonolithicPushAndPull exercises S1: a single-request blob push
// followed by a manifest push tagging it, then reads both back.
func TestMonolithicPushAndPull(t *testing.T) {
	_, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	layer := []byte("hello layer contents")
	layerDigest := "sha256:" + sha256Hex(layer)

	rec := doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/app/blobs/uploads/?digest=%s", layerDigest), layer, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, layerDigest, rec.Header().Get("Docker-Content-Digest"))

	config := []byte("{}")
	configDigest := "sha256:" + sha256Hex(config)
	rec = doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/app/blobs/uploads/?digest=%s", configDigest), config, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	manifestBody := []byte(fmt.Sprintf(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":%q,"size":%d},"layers":[{"mediaType":"application/vnd.oci.image.layer.v1.tar","digest":%q,"size":%d}]}`,
		configDigest, len(config), layerDigest, len(layer)))

	putHeaders := map[string]string{"Authorization": adminHeader(), "Content-Type": "application/vnd.oci.image.manifest.v1+json"}
	rec = doRequest(handler, http.MethodPut, "/v2/library/app/manifests/latest", manifestBody, putHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	manifestDigest := rec.Header().Get("Docker-Content-Digest")
	require.NotEmpty(t, manifestDigest)

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/manifests/latest", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, manifestBody, rec.Body.Bytes())

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/blobs/"+layerDigest, nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, layer, rec.Body.Bytes())
}

// TestManifestDeleteResolvesTagOrDigestAndDecrementsRefCount exercises
// DELETE /v2/<name>/manifests/<reference> against both a tag and a
// digest reference, and asserts the layer blob's ref_count is
// decremented once the manifest referencing it is gone.
func TestManifestDeleteResolvesTagOrDigestAndDecrementsRefCount(t *testing.T) {
	app, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader(), "Content-Type": "application/vnd.oci.image.manifest.v1+json"}

	config := []byte("{}")
	configDigest := "sha256:" + sha256Hex(config)
	rec := doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/app/blobs/uploads/?digest=%s", configDigest), config, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusCreated, rec.Code)

	manifestBody := []byte(fmt.Sprintf(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":%q,"size":%d}}`, configDigest, len(config)))
	rec = doRequest(handler, http.MethodPut, "/v2/library/app/manifests/latest", manifestBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	manifestDigest := rec.Header().Get("Docker-Content-Digest")

	ref, err := app.Store.ReferenceCount(context.Background(), "library/app", configDigest)
	require.NoError(t, err)
	require.Equal(t, int64(1), ref)

	// Delete by tag: this is the regression the tag-or-digest resolution
	// fix covers, since the manifest was never pushed under this name as
	// a digest.
	rec = doRequest(handler, http.MethodDelete, "/v2/library/app/manifests/latest", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/manifests/latest", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusNotFound, rec.Code)

	ref, err = app.Store.ReferenceCount(context.Background(), "library/app", configDigest)
	require.NoError(t, err)
	require.Equal(t, int64(0), ref)

	// Re-push under a fresh tag and delete by digest.
	rec = doRequest(handler, http.MethodPut, "/v2/library/app/manifests/v1", manifestBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, manifestDigest, rec.Header().Get("Docker-Content-Digest"))

	rec = doRequest(handler, http.MethodDelete, "/v2/library/app/manifests/"+manifestDigest, nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/manifests/v1", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestBlobDeleteRemovesStorageOnceUnreferenced exercises DELETE
// /v2/<name>/blobs/<digest>, checking the underlying storage object is
// only removed once no repository still references the digest.
func TestBlobDeleteRemovesStorageOnceUnreferenced(t *testing.T) {
	app, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	content := []byte("deletable blob contents")
	digest := "sha256:" + sha256Hex(content)
	rec := doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/app/blobs/uploads/?digest=%s", digest), content, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(handler, http.MethodDelete, "/v2/library/app/blobs/"+digest, nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)

	total, err := app.Store.TotalReferenceCount(context.Background(), digest)
	require.NoError(t, err)
	require.Equal(t, int64(0), total)

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/blobs/"+digest, nil, headers)
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err = app.Driver.Size(context.Background(), digest)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestInvalidRepositoryNameRejected exercises §3's repository name
// grammar: a name containing characters outside [a-z0-9._-/] must fail
// with NAME_INVALID before it ever reaches the catalog.
func TestInvalidRepositoryNameRejected(t *testing.T) {
	_, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	rec := doRequest(handler, http.MethodPost, "/v2/Not%20Valid!!/blobs/uploads/", nil, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "NAME_INVALID")

	rec = doRequest(handler, http.MethodPost, "/v2/library/app/blobs/uploads/", nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

// TestChunkedUploadRejectsOutOfOrderPatch exercises S2: a PATCH chunk
// whose Content-Range does not begin at the current offset is rejected
// with the current valid range so the client can resync.
func TestChunkedUploadRejectsOutOfOrderPatch(t *testing.T) {
	_, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	rec := doRequest(handler, http.MethodPost, "/v2/library/app/blobs/uploads/", nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
	uuid := rec.Header().Get("Docker-Upload-UUID")
	require.NotEmpty(t, uuid)

	chunk := []byte("first chunk")
	patchHeaders := map[string]string{
		"Authorization": adminHeader(),
		"Content-Range": fmt.Sprintf("0-%d", len(chunk)-1),
	}
	rec = doRequest(handler, http.MethodPatch, "/v2/library/app/blobs/uploads/"+uuid, chunk, patchHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, fmt.Sprintf("0-%d", len(chunk)-1), rec.Header().Get("Range"))

	// Skip ahead instead of continuing at the current offset.
	badHeaders := map[string]string{
		"Authorization": adminHeader(),
		"Content-Range": fmt.Sprintf("%d-%d", len(chunk)+10, len(chunk)+20),
	}
	rec = doRequest(handler, http.MethodPatch, "/v2/library/app/blobs/uploads/"+uuid, []byte("stray"), badHeaders)
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	require.Equal(t, fmt.Sprintf("0-%d", len(chunk)-1), rec.Header().Get("Range"))
}

// TestChunkedUploadCommitRejectsDigestMismatch exercises S3: committing
// with a declared digest that does not match the staged bytes is fatal
// to the session — staging state is discarded and the same UUID can no
// longer be used, so a retry must open a fresh upload session.
func TestChunkedUploadCommitRejectsDigestMismatch(t *testing.T) {
	_, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	rec := doRequest(handler, http.MethodPost, "/v2/library/app/blobs/uploads/", nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
	uuid := rec.Header().Get("Docker-Upload-UUID")

	content := []byte("committed blob contents")
	patchHeaders := map[string]string{
		"Authorization": adminHeader(),
		"Content-Range": fmt.Sprintf("0-%d", len(content)-1),
	}
	rec = doRequest(handler, http.MethodPatch, "/v2/library/app/blobs/uploads/"+uuid, content, patchHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code)

	wrongDigest := "sha256:" + sha256Hex([]byte("not the right content"))
	rec = doRequest(handler, http.MethodPut, "/v2/library/app/blobs/uploads/"+uuid+"?digest="+wrongDigest, nil, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The session is gone: the same UUID no longer resolves to anything.
	rec = doRequest(handler, http.MethodGet, "/v2/library/app/blobs/uploads/"+uuid, nil, headers)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// A retry must restart with a fresh session.
	rec = doRequest(handler, http.MethodPost, "/v2/library/app/blobs/uploads/", nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
	retryUUID := rec.Header().Get("Docker-Upload-UUID")
	require.NotEqual(t, uuid, retryUUID)

	rec = doRequest(handler, http.MethodPatch, "/v2/library/app/blobs/uploads/"+retryUUID, content, patchHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code)

	correctDigest := "sha256:" + sha256Hex(content)
	rec = doRequest(handler, http.MethodPut, "/v2/library/app/blobs/uploads/"+retryUUID+"?digest="+correctDigest, nil, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, correctDigest, rec.Header().Get("Docker-Content-Digest"))
}

// TestCrossRepositoryMount exercises S4: a blob already stored under one
// repository is linked into another without re-uploading its bytes.
func TestCrossRepositoryMount(t *testing.T) {
	app, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader()}

	content := []byte("shared base layer")
	digest := "sha256:" + sha256Hex(content)
	rec := doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/base/blobs/uploads/?digest=%s", digest), content, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/derived/blobs/uploads/?mount=%s&from=library/base", digest), nil, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, digest, rec.Header().Get("Docker-Content-Digest"))

	rec = doRequest(handler, http.MethodHead, "/v2/library/derived/blobs/"+digest, nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	total, err := app.Store.TotalReferenceCount(context.Background(), digest)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}

// TestTagListingPagination exercises S6: /tags/list honors n= and last=.
func TestTagListingPagination(t *testing.T) {
	_, handler := newTestApp(t)
	headers := map[string]string{"Authorization": adminHeader(), "Content-Type": "application/vnd.oci.image.manifest.v1+json"}

	config := []byte("{}")
	configDigest := "sha256:" + sha256Hex(config)
	rec := doRequest(handler, http.MethodPost,
		fmt.Sprintf("/v2/library/app/blobs/uploads/?digest=%s", configDigest), config, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, tag := range []string{"v1", "v2", "latest"} {
		body := []byte(fmt.Sprintf(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":%q,"size":%d}}`, configDigest, len(config)))
		rec = doRequest(handler, http.MethodPut, "/v2/library/app/manifests/"+tag, body, headers)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/v2/library/app/tags/list?n=1", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusOK, rec.Code)
	var page tagsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, []string{"latest"}, page.Tags)
	require.NotEmpty(t, rec.Header().Get("Link"))
}

// TestTokenIssuanceNarrowsToGrantedScope exercises S5: /token issues a
// bearer token whose scope claim is narrowed to what the account holds.
func TestTokenIssuanceNarrowsToGrantedScope(t *testing.T) {
	app, handler := newTestApp(t)
	ctx := context.Background()

	user, err := app.Store.CreateUser(ctx, "dev@example.com", "hunter2", false)
	require.NoError(t, err)
	repo, err := app.Store.CreateRepository(ctx, "library/app", false)
	require.NoError(t, err)
	require.NoError(t, app.Store.GrantScope(ctx, user.ID, repo.ID, "pull"))

	rec := doRequest(handler, http.MethodGet,
		"/token?service=registry&scope="+"repository:library/app:pull,push,delete",
		nil, map[string]string{"Authorization": basicAuthHeader("dev@example.com", "hunter2")})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := app.Auth.Issuer().Verify(resp.Token)
	require.NoError(t, err)
	scopes := claims.Scopes()
	require.Len(t, scopes, 1)
	require.True(t, scopes[0].Allows(auth.ActionPull))
	require.False(t, scopes[0].Allows(auth.ActionDelete))
}

func TestCatalogListingRestrictedToAdmins(t *testing.T) {
	app, handler := newTestApp(t)
	ctx := context.Background()
	_, err := app.Store.CreateRepository(ctx, "library/app", false)
	require.NoError(t, err)

	rec := doRequest(handler, http.MethodGet, "/v2/_catalog", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/v2/_catalog", nil, map[string]string{"Authorization": adminHeader()})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp catalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Repositories, "library/app")
}

package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Route names, matching the naming convention of the teacher's
// registry/api/v2/routes.go (RouteNameBase, RouteNameManifest, ...),
// extended with the upload sub-routes and referrers §6 adds.
const (
	routeVersion     = "version"
	routeToken       = "token"
	routeCatalog     = "catalog"
	routeUploadStart = "blob-upload-start"
	routeUploadChunk = "blob-upload-chunk"
	routeBlob        = "blob"
	routeManifest    = "manifest"
	routeTags        = "tags"
	routeReferrers   = "referrers"
	routeMetrics     = "metrics"
)

// namePattern is the repository-name path variable pattern: matched
// greedily by gorilla/mux since a name may itself contain slashes, with
// the actual grammar enforced downstream by withNameValidation rather
// than by the route regexp.
const namePattern = "{name:.+}"

// NewRouter builds the gorilla/mux router dispatching every route in
// §6's table to app, wrapping the whole tree with the access-log,
// metrics, rate-limit, and API-version middleware, matching the layered
// composition registry.go's NewRegistry builds around handlers.App.
func NewRouter(app *App) http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)

	r.Path("/v2/").Name(routeVersion).Handler(app.withAuth(app.handleVersion))
	r.Path("/token").Name(routeToken).Methods(http.MethodGet).Handler(app.withAuth(app.handleToken))
	r.Path("/v2/_catalog").Name(routeCatalog).Methods(http.MethodGet).Handler(app.withAuth(app.handleCatalog))

	r.Path("/v2/" + namePattern + "/blobs/uploads/").Name(routeUploadStart).
		Methods(http.MethodPost).Handler(withNameValidation(app.withAuth(app.handleStartUpload)))
	r.Path("/v2/" + namePattern + "/blobs/uploads/{uuid}").Name(routeUploadChunk).
		Methods(http.MethodGet, http.MethodHead, http.MethodPatch, http.MethodPut, http.MethodDelete).
		Handler(withNameValidation(app.withAuth(app.handleUploadChunk)))

	r.Path("/v2/" + namePattern + "/blobs/{digest}").Name(routeBlob).
		Methods(http.MethodGet, http.MethodHead, http.MethodDelete).
		Handler(withNameValidation(app.withAuth(app.handleBlob)))

	r.Path("/v2/" + namePattern + "/manifests/{reference}").Name(routeManifest).
		Methods(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete).
		Handler(withNameValidation(app.withAuth(app.handleManifest)))

	r.Path("/v2/" + namePattern + "/tags/list").Name(routeTags).
		Methods(http.MethodGet).Handler(withNameValidation(app.withAuth(app.handleTags)))

	r.Path("/v2/" + namePattern + "/referrers/{digest}").Name(routeReferrers).
		Methods(http.MethodGet).Handler(withNameValidation(app.withAuth(app.handleReferrers)))

	r.Path("/metrics").Name(routeMetrics).Methods(http.MethodGet).Handler(MetricsHandler())
	r.Path("/metrics/limiter").Methods(http.MethodGet).Handler(PrometheusHandler())

	// withMetrics runs as mux middleware so mux.CurrentRoute sees the
	// matched route; wrapped outside the router it would see none.
	r.Use(withMetrics)

	var handler http.Handler = r
	handler = app.withRateLimit(handler)
	handler = apiVersionHeader(handler)
	handler = withAccessLog(handler)
	return handler
}

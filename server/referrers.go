package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/errcode"
)

// handleReferrers implements the referrers listing
// (`GET /v2/<name>/referrers/<digest>?artifactType=`, §4.5).
func (a *App) handleReferrers(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, dgst := vars["name"], vars["digest"]
	if !a.requireScope(r.Context(), c, w, name, auth.ActionPull) {
		return
	}

	repo, err := a.Store.GetRepositoryByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.AddError(errcode.NameUnknown, name)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	idx, err := a.Manifests.Referrers(r.Context(), repo, dgst, r.URL.Query().Get("artifactType"))
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.oci.image.index.v1+json")
	_ = json.NewEncoder(w).Encode(idx)
}

package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/errcode"
	"github.com/PThorpe92/Floundr/manifest"
)

// handleManifest dispatches PUT/GET/HEAD/DELETE against
// `/v2/<name>/manifests/<reference>` to the Manifest Engine, per §4.5.
func (a *App) handleManifest(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, reference := vars["name"], vars["reference"]

	action := auth.ActionPull
	if r.Method == http.MethodPut {
		action = auth.ActionPush
	} else if r.Method == http.MethodDelete {
		action = auth.ActionDelete
	}
	if !a.requireScope(r.Context(), c, w, name, action) {
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.putManifest(c, w, r, name, reference)
	case http.MethodGet, http.MethodHead:
		a.getManifest(c, w, r, name, reference)
	case http.MethodDelete:
		a.deleteManifest(c, w, r, name, reference)
	}

	if (r.Method == http.MethodPut || r.Method == http.MethodDelete) && len(c.Errors) == 0 && a.Cache != nil {
		_ = a.Cache.Invalidate(name)
	}
}

func (a *App) putManifest(c *Context, w http.ResponseWriter, r *http.Request, name, reference string) {
	repo, err := a.Store.GetOrCreateRepository(r.Context(), name)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBodySize+1))
	if err != nil {
		c.AddError(errcode.ManifestInvalid, err.Error())
		return
	}

	result, err := a.Manifests.Put(r.Context(), repo, reference, r.Header.Get("Content-Type"), body)
	if err != nil {
		a.writeManifestError(c, err)
		return
	}

	w.Header().Set("Location", "/v2/"+name+"/manifests/"+result.Digest.String())
	w.Header().Set("Docker-Content-Digest", result.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

const maxManifestBodySize = 4 << 20

func (a *App) getManifest(c *Context, w http.ResponseWriter, r *http.Request, name, reference string) {
	repo, err := a.Store.GetRepositoryByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.AddError(errcode.NameUnknown, name)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	m, data, err := a.Manifests.Get(r.Context(), repo, reference, r.Header["Accept"])
	if err != nil {
		a.writeManifestError(c, err)
		return
	}

	w.Header().Set("Docker-Content-Digest", m.Digest)
	w.Header().Set("Content-Type", m.MediaType)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(m.Size, 10))
		return
	}
	_, _ = w.Write(data)
}

func (a *App) deleteManifest(c *Context, w http.ResponseWriter, r *http.Request, name, reference string) {
	repo, err := a.Store.GetRepositoryByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.AddError(errcode.NameUnknown, name)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	if err := a.Manifests.Delete(r.Context(), repo, reference); err != nil {
		a.writeManifestError(c, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// writeManifestError translates a Manifest Engine error into the OCI
// error code §4.5/§7 assigns it.
func (a *App) writeManifestError(c *Context, err error) {
	switch {
	case errors.Is(err, manifest.ErrBlobUnknown):
		c.AddError(errcode.ManifestBlobUnknown, err.Error())
	case errors.Is(err, manifest.ErrNotAcceptable):
		c.AddError(errcode.ManifestUnknown, err.Error())
	case errors.Is(err, manifest.ErrTooLarge), errors.Is(err, manifest.ErrUnsupportedMediaType):
		c.AddError(errcode.ManifestInvalid, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		c.AddError(errcode.ManifestUnknown, err.Error())
	default:
		c.AddError(errcode.Unknown, err.Error())
	}
}

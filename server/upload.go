package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/digest"
	"github.com/PThorpe92/Floundr/errcode"
	"github.com/PThorpe92/Floundr/uploads"
)

// handleStartUpload implements the three ways an upload can begin
// (§4.5/S1/S3/S4): monolithic push via `?digest=`, cross-repository
// mount via `?mount=&from=`, or opening a fresh chunked session.
func (a *App) handleStartUpload(c *Context, w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !a.requireScope(r.Context(), c, w, name, auth.ActionPush) {
		return
	}

	repo, err := a.Store.GetOrCreateRepository(r.Context(), name)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	q := r.URL.Query()

	if mountDigest := q.Get("mount"); mountDigest != "" {
		a.mountBlob(c, w, r, repo, mountDigest, q.Get("from"))
		return
	}

	if declared := q.Get("digest"); declared != "" {
		a.pushMonolithic(c, w, r, repo, declared)
		return
	}

	algo := digest.SHA256
	s, err := a.Uploads.Open(r.Context(), repo, algo)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	loc := fmt.Sprintf("/v2/%s/blobs/uploads/%s", name, s.UUID)
	w.Header().Set("Location", loc)
	w.Header().Set("Range", "0-0")
	w.Header().Set("Docker-Upload-UUID", s.UUID)
	w.WriteHeader(http.StatusAccepted)
}

// mountBlob implements the cross-repository mount path (S4): an existing
// digest already stored under some repository is linked into target
// without transferring bytes.
func (a *App) mountBlob(c *Context, w http.ResponseWriter, r *http.Request, target *catalog.Repository, mountDigest, from string) {
	if from != "" && !a.requireScope(r.Context(), c, w, from, auth.ActionPull) {
		return
	}
	b, err := a.Store.MountBlob(r.Context(), target, mountDigest)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.AddError(errcode.BlobUnknown, mountDigest)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", target.Name, b.Digest))
	w.Header().Set("Docker-Content-Digest", b.Digest)
	w.WriteHeader(http.StatusCreated)
}

// pushMonolithic implements a single-request blob push: the entire body
// is read, hashed, verified against the declared digest, and finalized
// in one step rather than going through the chunked session manager.
func (a *App) pushMonolithic(c *Context, w http.ResponseWriter, r *http.Request, repo *catalog.Repository, declared string) {
	d, err := digest.Parse(declared)
	if err != nil {
		c.AddError(errcode.DigestInvalid, err.Error())
		return
	}

	s, err := a.Uploads.Open(r.Context(), repo, d.Algorithm)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	if _, err := a.Uploads.Append(r.Context(), s, 0, r.Body); err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	final, err := a.Uploads.Commit(r.Context(), s, declared)
	if err != nil {
		if errors.Is(err, digest.ErrMismatch) {
			c.AddError(errcode.DigestInvalid, declared)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	size, err := a.Driver.Size(r.Context(), d.String())
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	if _, err := a.Store.CreateBlob(r.Context(), repo.ID, d.String(), "application/octet-stream", final, size); err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", repo.Name, d.String()))
	w.Header().Set("Docker-Content-Digest", d.String())
	w.WriteHeader(http.StatusCreated)
}

// handleUploadChunk dispatches every verb against an open upload session:
// GET/HEAD report status, PATCH appends a chunk, PUT commits, DELETE
// cancels.
func (a *App) handleUploadChunk(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, uuid := vars["name"], vars["uuid"]
	if !a.requireScope(r.Context(), c, w, name, auth.ActionPush) {
		return
	}

	s := a.Uploads.Get(uuid)
	if s == nil {
		c.AddError(errcode.BlobUploadUnknown, uuid)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.uploadStatus(c, w, s)
	case http.MethodPatch:
		a.uploadAppend(c, w, r, s)
	case http.MethodPut:
		a.uploadCommit(c, w, r, s)
	case http.MethodDelete:
		if err := a.Uploads.Cancel(r.Context(), s); err != nil {
			c.AddError(errcode.Unknown, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *App) uploadStatus(c *Context, w http.ResponseWriter, s *uploads.Session) {
	off := s.Offset()
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", s.Repo, s.UUID))
	w.Header().Set("Range", rangeHeader(off))
	w.Header().Set("Docker-Upload-UUID", s.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// rangeHeader renders the Range header value reporting bytes staged so
// far, as the last valid byte index rather than the total byte count,
// matching the teacher's registry/handlers/blobupload.go's endRange
// computation: `if endRange > 0 { endRange = endRange - 1 }`.
func rangeHeader(staged int64) string {
	end := staged
	if end > 0 {
		end--
	}
	return fmt.Sprintf("0-%d", end)
}

// uploadAppend implements PATCH (§4.5/S2): the chunk must begin exactly
// where the last one ended, or the session rejects it with 416 and the
// current valid range so the client can resync.
func (a *App) uploadAppend(c *Context, w http.ResponseWriter, r *http.Request, s *uploads.Session) {
	start := int64(0)
	if cr := r.Header.Get("Content-Range"); cr != "" {
		var end int64
		if _, err := fmt.Sscanf(cr, "%d-%d", &start, &end); err != nil {
			c.AddError(errcode.BlobUploadInvalid, cr)
			return
		}
	} else {
		start = s.Offset()
	}

	off, err := a.Uploads.Append(r.Context(), s, start, r.Body)
	if err != nil {
		if errors.Is(err, uploads.ErrOutOfOrder) {
			w.Header().Set("Range", rangeHeader(s.Offset()))
			c.AddError(errcode.RangeInvalid, nil)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", s.Repo, s.UUID))
	w.Header().Set("Range", rangeHeader(off))
	w.Header().Set("Docker-Upload-UUID", s.UUID)
	w.WriteHeader(http.StatusAccepted)
}

// uploadCommit implements PUT (§4.5/S3): an optional trailing chunk in
// the request body, followed by digest verification and finalization.
func (a *App) uploadCommit(c *Context, w http.ResponseWriter, r *http.Request, s *uploads.Session) {
	declared := r.URL.Query().Get("digest")
	if declared == "" {
		c.AddError(errcode.DigestInvalid, nil)
		return
	}

	if cl := r.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > 0 {
			if _, err := a.Uploads.Append(r.Context(), s, s.Offset(), r.Body); err != nil {
				c.AddError(errcode.Unknown, err.Error())
				return
			}
		}
	}

	final, err := a.Uploads.Commit(r.Context(), s, declared)
	if err != nil {
		if errors.Is(err, digest.ErrMismatch) {
			c.AddError(errcode.DigestInvalid, declared)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	repo, err := a.Store.GetRepositoryByName(r.Context(), s.Repo)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	size, err := a.Driver.Size(r.Context(), declared)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	if _, err := a.Store.CreateBlob(r.Context(), repo.ID, declared, "application/octet-stream", final, size); err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", s.Repo, declared))
	w.Header().Set("Docker-Content-Digest", declared)
	w.WriteHeader(http.StatusCreated)
}

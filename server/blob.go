package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/digest"
	"github.com/PThorpe92/Floundr/errcode"
	"github.com/PThorpe92/Floundr/storage"
)

// handleBlob dispatches GET/HEAD (read, with Range support) and DELETE
// against `/v2/<name>/blobs/<digest>`, matching §4.5/§6.
func (a *App) handleBlob(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, rawDigest := vars["name"], vars["digest"]

	d, err := digest.Parse(rawDigest)
	if err != nil {
		c.AddError(errcode.DigestInvalid, err.Error())
		return
	}

	action := auth.ActionPull
	if r.Method == http.MethodDelete {
		action = auth.ActionDelete
	}
	if !a.requireScope(r.Context(), c, w, name, action) {
		return
	}

	b, err := a.Store.GetBlob(r.Context(), name, d.String())
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.AddError(errcode.BlobUnknown, rawDigest)
			return
		}
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.readBlob(c, w, r, b)
	case http.MethodDelete:
		a.deleteBlob(c, w, r, name, b)
	}
}

func (a *App) readBlob(c *Context, w http.ResponseWriter, r *http.Request, b *catalog.Blob) {
	w.Header().Set("Docker-Content-Digest", b.Digest)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Accept-Ranges", "bytes")

	var rng *storage.ByteRange
	if h := r.Header.Get("Range"); h != "" {
		parsed, ok := parseRange(h, b.Size)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", b.Size))
			c.AddError(errcode.RangeInvalid, h)
			return
		}
		rng = parsed
	}

	if r.Method == http.MethodHead {
		if rng != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, b.Size))
			w.Header().Set("Content-Length", strconv.FormatInt(rng.End-rng.Start+1, 10))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", strconv.FormatInt(b.Size, 10))
		}
		return
	}

	rc, err := a.Driver.Read(r.Context(), b.Digest, rng)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	defer rc.Close()

	if rng != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, b.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(rng.End-rng.Start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(b.Size, 10))
	}
	_, _ = io.Copy(w, rc)
}

// parseRange parses a single "bytes=start-end" Range header value
// against size, matching the inclusive ByteRange the Storage Driver
// expects. Multi-range requests are not supported (§6 only names a
// single Range header on blob GET).
func parseRange(header string, size int64) (*storage.ByteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return nil, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return nil, false
	}
	end := size - 1
	if parts[1] != "" {
		e, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, false
		}
		end = e
	}
	if end >= size {
		end = size - 1
	}
	if start > end {
		return nil, false
	}
	return &storage.ByteRange{Start: start, End: end}, true
}

func (a *App) deleteBlob(c *Context, w http.ResponseWriter, r *http.Request, repo string, b *catalog.Blob) {
	if err := a.Store.DeleteBlob(r.Context(), repo, b.Digest); err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	count, err := a.Store.TotalReferenceCount(r.Context(), b.Digest)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}
	if count == 0 {
		if err := a.Driver.Delete(r.Context(), b.Digest); err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.AddError(errcode.Unknown, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

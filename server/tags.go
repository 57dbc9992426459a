package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/errcode"
)

type tagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// handleTags implements tag listing (`GET /v2/<name>/tags/list?n=&last=`,
// §4.5/S6), consulting the tag cache when one is configured before
// falling back to the catalog.
func (a *App) handleTags(c *Context, w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
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

	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil || n <= 0 {
		n = maxCatalogEntries
	}
	last := q.Get("last")

	// The cache always holds the full, unpaginated tag list for repo so
	// it can answer any n, not just whatever n populated it; only an
	// unpaginated request (last == "") may read or populate it, since a
	// page boundary tells us nothing about the tags before it.
	var tags []string
	if last == "" {
		if a.Cache != nil {
			if cached, ok := a.Cache.Get(name); ok {
				tags = cached
			}
		}
		if tags == nil {
			tags, err = a.Manifests.ListTags(r.Context(), repo, 0, "")
			if err != nil {
				c.AddError(errcode.Unknown, err.Error())
				return
			}
			if a.Cache != nil {
				_ = a.Cache.Set(name, tags)
			}
		}
	} else {
		tags, err = a.Manifests.ListTags(r.Context(), repo, n+1, last)
		if err != nil {
			c.AddError(errcode.Unknown, err.Error())
			return
		}
	}

	more := len(tags) > n
	if more {
		tags = tags[:n]
	}

	w.Header().Set("Content-Type", "application/json")
	if more && len(tags) > 0 {
		w.Header().Set("Link", nextLink(r.URL, n, tags[len(tags)-1]))
	}
	_ = json.NewEncoder(w).Encode(tagsResponse{Name: name, Tags: tags})
}

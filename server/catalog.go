package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/errcode"
)

// maxCatalogEntries bounds an unpaginated /v2/_catalog response,
// matching the teacher's maximumReturnedEntries default.
const maxCatalogEntries = 100

type catalogResponse struct {
	Repositories []string `json:"repositories"`
}

// handleCatalog implements repository listing (`GET /v2/_catalog?n=&last=`,
// §4.6): admin-only per the Open Question §9 resolves in favor of.
func (a *App) handleCatalog(c *Context, w http.ResponseWriter, r *http.Request) {
	if !a.Auth.AuthorizeCatalog(c.Principal) {
		if c.Principal.Method == auth.MethodAnonymous {
			challenge(w, a)
			c.AddError(errcode.Unauthorized, nil)
			return
		}
		c.AddError(errcode.Denied, nil)
		return
	}

	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil || n <= 0 {
		n = maxCatalogEntries
	}
	last := q.Get("last")

	rows, err := a.Store.ListRepositories(r.Context(), false)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	sort.Strings(names)
	if last != "" {
		i := sort.SearchStrings(names, last)
		if i < len(names) && names[i] == last {
			i++
		}
		names = names[i:]
	}
	more := len(names) > n
	if more {
		names = names[:n]
	}

	w.Header().Set("Content-Type", "application/json")
	if more && len(names) > 0 {
		w.Header().Set("Link", nextLink(r.URL, n, names[len(names)-1]))
	}
	_ = json.NewEncoder(w).Encode(catalogResponse{Repositories: names})
}

// nextLink builds the RFC 5988 `Link: <url>; rel="next"` header value
// pagination endpoints emit, matching the teacher's createLinkEntry.
func nextLink(orig *url.URL, n int, last string) string {
	u := *orig
	v := url.Values{}
	v.Set("n", strconv.Itoa(n))
	v.Set("last", last)
	u.RawQuery = v.Encode()
	u.Fragment = ""
	return fmt.Sprintf(`<%s>; rel="next"`, u.String())
}

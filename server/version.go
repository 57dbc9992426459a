package server

import (
	"net/http"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/errcode"
)

// handleVersion implements the version probe (`GET /v2/`, §4.7):
// 200 for any authenticated principal, 401 with a challenge otherwise.
// Since the probe names no repository, "authenticated" here just means
// the principal is not anonymous.
func (a *App) handleVersion(c *Context, w http.ResponseWriter, r *http.Request) {
	if c.Principal.Method == auth.MethodAnonymous {
		challenge(w, a)
		c.AddError(errcode.Unauthorized, nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

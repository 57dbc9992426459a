package server

import (
	"net/http"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/errcode"
)

// Context carries per-request state through a handler dispatch, matching
// the teacher's *Context embedded in every handler struct
// (blobUploadHandler, catalogHandler, and so on).
type Context struct {
	*App

	// Repo is not set by withAuth and stays nil; handlers resolve the
	// repository for {name} themselves through the Store.
	Repo *catalog.Repository

	// RepoName is not set by withAuth and stays empty; handlers read the
	// {name} path variable from mux.Vars.
	RepoName string

	// Principal is who is making the request, resolved once by the
	// auth middleware and never re-derived by a handler.
	Principal *auth.Principal

	// Errors accumulates domain errors a handler wants reported; the
	// dispatcher wrapper writes them as the OCI error envelope once the
	// handler returns, mirroring the teacher's ctx.Errors accumulator.
	Errors []errcode.Error
}

// AddError appends a single OCI error to the context's accumulator.
func (c *Context) AddError(code errcode.Code, detail interface{}) {
	c.Errors = append(c.Errors, errcode.New(code, detail).List[0])
}

// writeErrors flushes c.Errors as the OCI JSON error envelope, using the
// first error's status as the response code, matching errcode.WriteResponse.
func (c *Context) writeErrors(w http.ResponseWriter) {
	if len(c.Errors) == 0 {
		errcode.WriteResponse(w, errcode.New(errcode.Unknown, nil))
		return
	}
	e := &errcode.Errors{List: c.Errors}
	errcode.WriteResponse(w, e)
}

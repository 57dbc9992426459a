package server

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/PThorpe92/Floundr/errcode"
)

// nameComponent matches one slash-separated segment of a repository name:
// lowercase alphanumerics optionally punctuated by single ., _, or -
// separators, matching spec.md §3's repository name grammar
// `[a-z0-9]+([._-][a-z0-9]+)*`.
var nameComponent = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*$`)

// validRepoName reports whether name conforms to the repository name
// grammar: one or more nameComponent segments joined by "/".
func validRepoName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if !nameComponent.MatchString(part) {
			return false
		}
	}
	return true
}

// withNameValidation rejects any request whose {name} path variable does
// not conform to the repository name grammar with NAME_INVALID, matching
// §6's required error code, before the request reaches auth or the
// catalog.
func withNameValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, ok := mux.Vars(r)["name"]; ok && !validRepoName(name) {
			errcode.WriteResponse(w, errcode.New(errcode.NameInvalid, name))
			return
		}
		next.ServeHTTP(w, r)
	})
}

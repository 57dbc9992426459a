package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload a bearer token carries: the authenticated
// account, the client key it was issued for (if any), and the narrowed
// set of repository scopes actually granted — matching the Token entity
// {token, account, client_id?, expires} plus the scope claims §4.6
// requires every bearer token to carry.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope"`
}

// Scopes parses the claim's packed scope string back into structured
// Scopes, the form Authorize checks requests against.
func (c Claims) Scopes() []Scope {
	return ParseScopes(c.Scope)
}

func actionsFromCSV(csv string) []Action {
	var actions []Action
	for _, a := range strings.Split(csv, ",") {
		a = strings.TrimSpace(a)
		switch Action(a) {
		case ActionPull, ActionPush, ActionDelete:
			actions = append(actions, Action(a))
		}
	}
	return actions
}

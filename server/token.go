package server

import (
	"encoding/json"
	"net/http"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/errcode"
)

// tokenResponse is the JSON body a successful `/token` request returns,
// matching §4.6's `{token, access_token, expires_in, issued_at}` shape
// (both `token` and `access_token` carry the same JWT, matching the
// two names Docker's own client library accepts interchangeably).
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	IssuedAt    string `json:"issued_at"`
}

// handleToken implements token issuance (`GET /token?service=&scope=`,
// §4.6): the client authenticates with Basic credentials, requested
// scopes are narrowed to the intersection of what was asked for and
// what the account actually holds, and a signed JWT carrying the
// narrowed scope is returned.
func (a *App) handleToken(c *Context, w http.ResponseWriter, r *http.Request) {
	user, password, ok := auth.ParseBasicCredentials(r.Header.Get("Authorization"))
	if !ok {
		challenge(w, a)
		c.AddError(errcode.Unauthorized, nil)
		return
	}
	acct, err := a.Store.VerifyLogin(r.Context(), user, password)
	if err != nil {
		challenge(w, a)
		c.AddError(errcode.Unauthorized, nil)
		return
	}

	requested := auth.ParseScopes(r.URL.Query().Get("scope"))
	granted, err := a.Auth.Issuer().Grant(r.Context(), acct, requested)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	signed, expiresAt, err := a.Auth.Issuer().Issue(r.Context(), acct.Email, nil, granted)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return
	}

	ttl := a.Auth.Issuer().TTL()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{
		Token:       signed,
		AccessToken: signed,
		ExpiresIn:   int(ttl.Seconds()),
		IssuedAt:    expiresAt.Add(-ttl).Format(httpTimeFormat),
	})
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/errcode"
)

// apiVersionHeader sets the mandatory Docker-Distribution-API-Version
// header on every /v2/ response, matching §4.7's requirement.
func apiVersionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
		next.ServeHTTP(w, r)
	})
}

// withAccessLog wraps h with gorilla/handlers' Apache-style combined
// logging, piped into logrus at Info level the way the teacher's
// registry.go pipes its own access logger through logrus, generalized
// since this repository logs exclusively through logrus rather than
// GitLab's labkit.
func withAccessLog(h http.Handler) http.Handler {
	return handlers.CombinedLoggingHandler(logrus.StandardLogger().WriterLevel(logrus.InfoLevel), h)
}

// withMetrics records request latency and status per named mux route.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unknown"
		if m := mux.CurrentRoute(r); m != nil {
			if name := m.GetName(); name != "" {
				route = name
			}
		}
		observe(r.Method, route, rw.status, start)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withRateLimit enforces the App's per-process token bucket, responding
// 429 TOOMANYREQUESTS when exhausted, matching §6's TOOMANYREQUESTS code.
func (a *App) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			rateLimitRejections.Inc()
			errcode.WriteResponse(w, errcode.New(errcode.TooManyRequests, nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth resolves the request's Authorization header into a Principal
// and stashes it on a fresh *Context for downstream handlers, matching
// §4.6's Basic+Bearer handshake. It never itself denies a request — the
// per-route authorization check (requireScope) makes that decision once
// the target repository and action are known.
func (a *App) withAuth(next func(c *Context, w http.ResponseWriter, r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			challenge(w, a)
			errcode.WriteResponse(w, errcode.New(errcode.Unauthorized, nil))
			return
		}
		c := &Context{App: a, Principal: principal}
		next(c, w, r)
		if len(c.Errors) > 0 {
			c.writeErrors(w)
		}
	})
}

// challenge sets the WWW-Authenticate header the unauthenticated /v2/
// probe and any subsequent 401 must carry, per §4.6 and §6.
func challenge(w http.ResponseWriter, a *App) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer realm="%s/token",service="%s"`, a.Config.HTTP.Addr(), a.Config.Auth.Service))
}

// requireScope authorizes principal against repoName/action, writing
// DENIED (or UNAUTHORIZED for an anonymous principal, with a fresh
// challenge) and reporting false when the request may not proceed.
func (a *App) requireScope(ctx context.Context, c *Context, w http.ResponseWriter, repoName string, action auth.Action) bool {
	ok, err := a.Auth.Authorize(ctx, c.Principal, repoName, action)
	if err != nil {
		c.AddError(errcode.Unknown, err.Error())
		return false
	}
	if ok {
		return true
	}
	if c.Principal.Method == auth.MethodAnonymous {
		challenge(w, a)
		c.AddError(errcode.Unauthorized, nil)
		return false
	}
	c.AddError(errcode.Denied, nil)
	return false
}

// Package server implements the Protocol Router component: an
// http.Handler that dispatches every OCI Distribution v2 route to the
// registry core (catalog, storage, uploads, manifest, auth) and
// translates domain errors into the OCI error envelope, matching the
// teacher's registry/handlers app + dispatcher pattern.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/PThorpe92/Floundr/auth"
	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/config"
	"github.com/PThorpe92/Floundr/internal/dcontext"
	"github.com/PThorpe92/Floundr/manifest"
	"github.com/PThorpe92/Floundr/storage"
	"github.com/PThorpe92/Floundr/uploads"
)

// registryNamespace is the docker/go-metrics namespace every counter and
// histogram this app registers is grouped under, matching the
// teacher's own metrics package convention of one namespace per binary.
var registryNamespace = metrics.NewNamespace("registry", "http", nil)

var (
	requestDuration = registryNamespace.NewLabeledTimer("request_duration_seconds", "HTTP request latency", "method", "route")
	requestTotal    = registryNamespace.NewLabeledCounter("requests_total", "HTTP requests served", "method", "route", "code")
)

// rateLimitRejections is a plain prometheus.Counter registered directly
// with the default registry. metrics.Register adds the docker/go-metrics
// namespace above to that same default registry, so both libraries'
// metrics end up in one registry.
var rateLimitRejections = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "registry",
	Subsystem: "http",
	Name:      "rate_limited_requests_total",
	Help:      "Requests rejected by the process-wide rate limiter.",
})

func init() {
	metrics.Register(registryNamespace)
	prometheus.MustRegister(rateLimitRejections)
}

// App wires the registry core's components together into the
// dependencies the HTTP handlers need, matching the teacher's
// handlers.App aggregate.
type App struct {
	Config    *config.Configuration
	Store     *catalog.Store
	Driver    storage.Driver
	Uploads   *uploads.Manager
	Manifests *manifest.Engine
	Auth      *auth.Authenticator
	Cache     *catalog.TagCache

	limiter *rate.Limiter
}

// NewApp constructs the App: opens the catalog, selects a storage
// driver from cfg, recovers any in-flight uploads, builds the token
// issuer, and bootstraps the configured admin account on first run.
func NewApp(ctx context.Context, cfg *config.Configuration) (*App, error) {
	store, err := catalog.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("server: opening catalog: %w", err)
	}

	driver, err := buildDriver(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	mgr, err := uploads.New(ctx, store, driver, cfg.Uploads.Horizon)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("server: starting upload manager: %w", err)
	}

	issuer := auth.NewIssuer(store, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Service)
	if cfg.Auth.TokenTTL > 0 {
		issuer = issuer.WithTTL(cfg.Auth.TokenTTL)
	}

	app := &App{
		Config:    cfg,
		Store:     store,
		Driver:    driver,
		Uploads:   mgr,
		Manifests: manifest.New(store, driver),
		Auth:      auth.NewAuthenticator(store, issuer),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
	}

	if cfg.Cache.RedisAddr != "" {
		app.Cache = catalog.NewTagCache(cfg.Cache.RedisAddr, cfg.Cache.TTL)
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return app, nil
}

// bootstrapAdmin creates the configured admin account if the catalog has
// no users yet, matching spec.md §6's "default admin email/password
// (first run only)" configuration surface.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	if a.Config.Auth.AdminEmail == "" {
		return nil
	}
	users, err := a.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("server: checking for existing users: %w", err)
	}
	if len(users) > 0 {
		return nil
	}
	if _, err := a.Store.CreateUser(ctx, a.Config.Auth.AdminEmail, a.Config.Auth.AdminPassword, true); err != nil {
		return fmt.Errorf("server: bootstrapping admin account: %w", err)
	}
	dcontext.GetLogger(ctx).WithField("email", a.Config.Auth.AdminEmail).Info("server: bootstrapped default admin account")
	return nil
}

func buildDriver(cfg *config.Configuration) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case "", "filesystem":
		return storage.NewLocalDriver(cfg.Storage.Root), nil
	case "s3":
		return storage.NewS3Driver(cfg.Storage.S3.Region, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix)
	default:
		return nil, fmt.Errorf("server: unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Close releases the catalog connection and tag cache pool.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Close()
	}
	return a.Store.Close()
}

// observe records a completed request's latency and outcome under
// route, matching the docker/go-metrics labeled-timer pattern the
// teacher's registry/storage/cache package uses for its own hit/miss
// counters.
func observe(method, route string, code int, since time.Time) {
	requestDuration.WithValues(method, route).UpdateSince(since)
	requestTotal.WithValues(method, route, fmt.Sprintf("%d", code)).Inc()
}

// MetricsHandler serves the docker/go-metrics namespace (per-route
// request latency and counts).
func MetricsHandler() http.Handler {
	return metrics.Handler()
}

// PrometheusHandler serves the default prometheus registry through
// promhttp: the rate-limiter rejection counter along with everything
// else registered there, including the Go runtime collectors and the
// docker/go-metrics namespace.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

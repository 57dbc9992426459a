package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PThorpe92/Floundr/config"
	"github.com/PThorpe92/Floundr/internal/dcontext"
	"github.com/PThorpe92/Floundr/server"
)

// drainTimeout bounds how long listenAndServe waits for in-flight
// requests to finish after a shutdown signal, matching the teacher's
// HTTP.DrainTimeout knob.
const drainTimeout = 10 * time.Second

// ServeCmd runs the registry HTTP server, matching the teacher's
// ServeCmd/NewRegistry/ListenAndServe shape.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve stores and distributes OCI images",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatal(err)
		}
		if err := configureLogging(cfg); err != nil {
			fatal(err)
		}
		if err := configureReporting(cfg); err != nil {
			fatal(err)
		}

		ctx := dcontext.Background()
		app, err := server.NewApp(ctx, cfg)
		if err != nil {
			fatal(fmt.Errorf("registryd: building app: %w", err))
		}
		defer app.Close()

		handler := server.NewRouter(app)
		httpServer := &http.Server{Handler: handler}

		if err := listenAndServe(cfg, httpServer); err != nil {
			fatal(err)
		}
	},
}

// listenAndServe binds cfg.HTTP.Addr and serves handler until a
// SIGTERM/SIGINT arrives, then drains in-flight connections, matching
// the teacher's ListenAndServe graceful-shutdown pattern.
func listenAndServe(cfg *config.Configuration, srv *http.Server) error {
	ln, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("registryd: binding %s: %w", cfg.HTTP.Addr(), err)
	}

	if cfg.HTTP.TLSCert != "" {
		logrus.WithField("address", ln.Addr()).Info("registryd: listening, tls")
	} else {
		logrus.WithField("address", ln.Addr()).Info("registryd: listening")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	serveErr := make(chan error, 1)

	go func() {
		if cfg.HTTP.TLSCert != "" {
			serveErr <- srv.ServeTLS(ln, cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
			return
		}
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case s := <-quit:
		logrus.WithField("signal", s).Info("registryd: draining connections")
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		logrus.Info("registryd: graceful shutdown complete")
		return nil
	}
}

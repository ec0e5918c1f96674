// Command openact-server runs the OpenAct HTTP API façade: the REST surface
// over the Registry, Binding Manager, Auth Orchestrator, and Execution
// Engine (spec.md §6).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aionixone/openact-sub001/pkg/appwire"
	"github.com/aionixone/openact-sub001/pkg/httpapi"
	"github.com/aionixone/openact-sub001/pkg/logger"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 35 * time.Second // must exceed the router's request timeout (OPENACT_HTTP_TIMEOUT, default 30s)
	serverIdleTimeout      = 60 * time.Second
)

func main() {
	logger.Initialize()

	app, err := appwire.Bootstrap()
	if err != nil {
		logger.Errorf("bootstrapping application: %v", err)
		os.Exit(1)
	}
	defer app.DB.Close()

	addr := os.Getenv("OPENACT_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(app),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("openact-server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down openact-server...")

	ctx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
		os.Exit(1)
	}
	logger.Infof("openact-server shutdown complete")
}

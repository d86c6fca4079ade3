// Command graphcache serves the content graph API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-graph-cache/pkg/config"
	"github.com/goliatone/go-graph-cache/pkg/di"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	path := pflag.String("config", "", "path to a YAML config file; GRAPHCACHE_* variables override it")
	pflag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}

	c, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	l := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Start(ctx)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: c.Router()}
	serveErr := make(chan error, 1)
	go func() {
		l.Info("listening", logger.String("addr", cfg.HTTP.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

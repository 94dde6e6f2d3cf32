package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/datacleaner/internal/api"
	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/db"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/timeutil"
)

func runServe(args []string, env config.Env) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", env.Listen, "Listen address")
	dbPath := fs.String("db", env.DBPath, "Run database path (exports are not recorded when empty)")
	cfgPath := fs.String("config", "", "Cleaner config JSON path")
	dataPath := fs.String("data", "", "Data file to load on start")
	dataDir := fs.String("data-dir", env.DataDir, "Directory clients may open data files from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}

	cfg, err := config.Resolve(*cfgPath, env)
	if err != nil {
		return err
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open run database: %w", err)
		}
		defer store.Close()
		monitoring.Logf("recording runs in %s", store.Path())
	}

	srv := api.NewServer(cfg, store, timeutil.RealClock{})
	if *dataDir != "" {
		srv.SetDataDir(*dataDir)
	}
	if *dataPath != "" {
		if err := srv.LoadFile(*dataPath); err != nil {
			return err
		}
	}

	mux := srv.ServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("listening on http://%s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	default:
		return nil
	}
}

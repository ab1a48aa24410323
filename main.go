// slateq is a message queue service speaking the SQS wire protocol, with
// pluggable storage backends: in-memory, Pebble, or FoundationDB.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/slateq/slateq/limits"
	"github.com/slateq/slateq/store"
)

// newMessageID generates the globally unique identifier assigned to each
// message, which doubles as its receipt handle.
func newMessageID() string {
	return uuid.New().String()
}

// envOr returns the value of the environment variable when set, otherwise the
// fallback. Flags still win over the environment.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var (
		port          = flag.String("port", envOr("SLATEQ_PORT", "8080"), "port to listen on")
		backend       = flag.String("backend", envOr("SLATEQ_BACKEND", "memory"), "storage backend: memory, pebble or fdb")
		dataDir       = flag.String("data-dir", envOr("SLATEQ_DATA_DIR", "slateq-data"), "data directory for the pebble backend")
		relaxedLimits = flag.Bool("relaxed-limits", false, "relax parameter validation beyond the standard service limits")
	)
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "slateq",
		Level: hclog.Info,
	})

	mode := limits.Strict
	if *relaxedLimits {
		mode = limits.Relaxed
	}

	var (
		st  store.Store
		err error
	)
	switch *backend {
	case "memory":
		st = store.NewMemoryStore()
	case "pebble":
		st, err = store.OpenPebbleStore(store.PebbleOptions{DataDir: *dataDir})
	case "fdb":
		st, err = store.NewFDBStore()
	default:
		logger.Error("unknown backend", "backend", *backend)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open store", "backend", *backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	app := &App{
		Store:  st,
		Limits: mode,
		Logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	app.RegisterHandlers(r)

	addr := fmt.Sprintf(":%s", *port)
	logger.Info("starting server", "addr", addr, "backend", *backend, "limits", mode.String())
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

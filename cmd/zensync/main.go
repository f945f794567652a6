package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/beyondwords/zensync/internal/httpapi"
	"github.com/beyondwords/zensync/internal/zensync"
)

func main() {
	// A missing .env is the normal case; env vars win either way.
	_ = godotenv.Load()

	addr := os.Getenv("ZENSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	stateFile, stateBackend, err := buildStateBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	store, err := zensync.Open(zensync.StoreOptions{
		StateBackend: stateBackend,
		StateFile:    stateFile,
		Defaults: zensync.RemoteConfig{
			URL: strings.TrimSpace(os.Getenv("ZENSYNC_REMOTE_URL")),
			Key: strings.TrimSpace(os.Getenv("ZENSYNC_REMOTE_KEY")),
		},
		DebounceWindow: durationEnv("ZENSYNC_DEBOUNCE_WINDOW", 0),
		RemoteTimeout:  durationEnv("ZENSYNC_REMOTE_TIMEOUT", 0),
		EventLimit:     intEnv("ZENSYNC_EVENT_LIMIT", 0),
		WatchState:     boolEnv("ZENSYNC_WATCH_STATE", false),
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	server := &http.Server{
		Addr: addr,
		Handler: httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
			AuthToken:    os.Getenv("ZENSYNC_AUTH_TOKEN"),
			MaxBodyBytes: int64Env("ZENSYNC_MAX_BODY_BYTES", 0),
		}),
	}

	go func() {
		log.Printf("zensync listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	store.Close()
}

// buildStateBackendFromEnv returns the state-file path (for the watcher)
// when the backend is file-based, plus the backend itself. With nothing
// configured the store runs on a default state file in the data dir.
func buildStateBackendFromEnv() (string, zensync.StateBackend, error) {
	dsn := strings.TrimSpace(os.Getenv("ZENSYNC_STATE_DSN"))
	if dsn == "" {
		dataDir := strings.TrimSpace(os.Getenv("ZENSYNC_DATA_DIR"))
		if dataDir == "" {
			dataDir = ".zensync"
		}
		return filepath.Join(dataDir, "state.json"), nil, nil
	}
	backend, err := zensync.BuildStateBackendFromDSN(dsn)
	if err != nil {
		return "", nil, err
	}
	// File-backed DSNs keep their path so the state watcher can bind to it.
	return zensync.StateFileFromDSN(dsn), backend, nil
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %v", name, raw, fallback)
		return fallback
	}
	return value
}

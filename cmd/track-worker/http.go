package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/services/prefetch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxTriggerItems = 100

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	warmer *prefetch.Warmer
	cfg    *config.Config
}

type triggerRequest struct {
	Items []prefetch.Item `json:"items"`
}

type triggerResponse struct {
	Outcomes map[prefetch.Outcome]int `json:"outcomes"`
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.warmer == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "warmer not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.warmer.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// без ключей провайдеров и паролей
		tb := opts.cfg.TrackBox
		writeJSON(w, http.StatusOK, map[string]any{
			"concurrency":            tb.WorkerConcurrency,
			"rateLimitPerMinute":     tb.WorkerRateLimitPerMinute,
			"carrierRateLimits":      tb.WorkerCarrierRateLimits,
			"cacheTtlSeconds":        tb.CacheTTLSeconds,
			"providerTimeoutSeconds": tb.ProviderTimeoutSeconds,
			"cacheBackend":           opts.cfg.Stores.CacheBackend,
			"topic":                  opts.cfg.Kafka.SubmissionRecordedTopicName,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.warmer == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "warmer not wired"})
			return
		}
		var req triggerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if len(req.Items) == 0 || len(req.Items) > maxTriggerItems {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("items must contain 1..%d entries", maxTriggerItems)})
			return
		}
		writeJSON(w, http.StatusOK, triggerResponse{Outcomes: opts.warmer.Warm(r.Context(), req.Items)})
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

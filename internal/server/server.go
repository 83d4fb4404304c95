// Package server provides the HTTP API and lifecycle management for the
// Keeper knowledge graph service.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/keeper/internal/config"
	"github.com/scrypster/keeper/internal/graph"
)

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the
// WebSocket hub for wiring graph event broadcasts. The server shuts down
// gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, manager *graph.Manager) (string, *Hub, error) {
	mux := http.NewServeMux()

	hub := NewHub(
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	)
	go hub.Run()

	limiter := newRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)

	h := &handlers{manager: manager}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/ingest", h.ingest)
	apiMux.HandleFunc("POST /api/query", h.query)
	apiMux.HandleFunc("GET /api/search", h.search)
	apiMux.HandleFunc("GET /api/entities", h.listEntities)
	apiMux.HandleFunc("GET /api/entities/{id}", h.getEntity)
	apiMux.HandleFunc("POST /api/entities/{id}/resolve", h.resolveConflicts)
	apiMux.HandleFunc("POST /api/destinations", h.destinations)
	apiMux.HandleFunc("POST /api/documents", h.saveDocument)
	apiMux.HandleFunc("POST /api/export", h.export)
	apiMux.HandleFunc("GET /api/stats", h.stats)

	// Health endpoint, no auth required, used by monitoring.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/api/", requireAuth(apiMux, cfg))

	// WebSocket endpoint; origin validation handles security.
	mux.Handle("/ws", hub)

	handler := rateLimit(mux, limiter)
	handler = securityHeaders(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}

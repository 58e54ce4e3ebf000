// Package api is the embedded database's thin HTTP surface.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartServer starts the HTTP server with all routes configured.
func StartServer(eng Engine, config ServerConfig) error {
	metrics := NewMetrics()
	server := NewServer(eng, config, metrics)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unprotected, for scraping/orchestrators.
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", metrics.InstrumentHandler("GET", "/healthz", server.handleHealth))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(config.APIKey)))

		r.Put("/kv/{key}", metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", server.handlePut))
		r.Get("/kv/{key}", metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", server.handleGet))
		r.Delete("/kv/{key}", metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", server.handleDelete))
		r.Post("/write", metrics.InstrumentHandler("POST", "/api/v1/write", server.handleWrite))
		r.Post("/checkpoint", metrics.InstrumentHandler("POST", "/api/v1/checkpoint", server.handleCheckpoint))
	})

	addr := fmt.Sprintf(":%d", config.Port)
	fmt.Printf("btreedb API listening on %s\n", addr)
	fmt.Printf("metrics available at http://localhost:%d/metrics\n", config.Port)
	return http.ListenAndServe(addr, r)
}

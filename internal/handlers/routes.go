package handlers

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes wires the four monitoring routes. HEAD is registered
// explicitly: mux does not add it when methods are restricted.
func RegisterRoutes(r *mux.Router, h *MetricsHandler) {
	r.HandleFunc("/health", h.Health).Methods("GET", "HEAD")
	r.HandleFunc("/immich", h.Immich).Methods("GET", "HEAD")
	r.HandleFunc("/cloudflare", h.Cloudflare).Methods("GET", "HEAD")
	r.HandleFunc("/all", h.All).Methods("GET", "HEAD")
	r.HandleFunc("/", h.All).Methods("GET", "HEAD")
}

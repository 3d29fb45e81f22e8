package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/cloudflare"
	"github.com/jepsonc/immich-monitor/internal/immich"
)

// ImmichCollector yields upload metrics from the photo database.
type ImmichCollector interface {
	Collect(ctx context.Context) immich.Result
}

// CloudflareCollector yields the 24h CDN summary.
type CloudflareCollector interface {
	Collect(ctx context.Context) cloudflare.Result
}

// MetricsHandler serves the monitoring routes. Aggregator failures are
// embedded in the JSON payload; no route ever answers non-200 for them.
type MetricsHandler struct {
	immich     ImmichCollector
	cloudflare CloudflareCollector
	log        *logrus.Entry
}

func NewMetricsHandler(logger *logrus.Logger, im ImmichCollector, cf CloudflareCollector) *MetricsHandler {
	return &MetricsHandler{
		immich:     im,
		cloudflare: cf,
		log:        logger.WithField("component", "metrics_handler"),
	}
}

type combinedResponse struct {
	Timestamp  string            `json:"timestamp"`
	Immich     immich.Result     `json:"immich"`
	Cloudflare cloudflare.Result `json:"cloudflare"`
}

// Health never touches the database or the CDN API.
func (h *MetricsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, map[string]string{"status": "healthy"})
}

func (h *MetricsHandler) Immich(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, h.immich.Collect(r.Context()))
}

func (h *MetricsHandler) Cloudflare(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, h.cloudflare.Collect(r.Context()))
}

// All collects both sources fresh and independently; one failing never
// suppresses the other.
func (h *MetricsHandler) All(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, combinedResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Immich:     h.immich.Collect(r.Context()),
		Cloudflare: h.cloudflare.Collect(r.Context()),
	})
}

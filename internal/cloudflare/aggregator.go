package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/config"
)

const noDataNote = "No analytics data available for the last 24 hours (free plan delay or low traffic)"

// Aggregator sums the trailing day of hourly analytics buckets into a
// single CDN summary.
type Aggregator struct {
	client *Client
	cfg    *config.Config
	log    *logrus.Entry
}

func NewAggregator(logger *logrus.Logger, cfg *config.Config, client *Client) *Aggregator {
	return &Aggregator{
		client: client,
		cfg:    cfg,
		log:    logger.WithField("component", "cloudflare_aggregator"),
	}
}

// Collect runs the analytics query and the zone-details lookup and derives
// the summary. All failures fold into the result payload; the zone-details
// call alone failing degrades to "unknown" zone fields rather than an
// error.
func (a *Aggregator) Collect(ctx context.Context) Result {
	log := a.log.WithField("operation", "collect")
	configured := a.cfg.CloudflareConfigured()

	resp, err := a.client.ZoneAnalytics(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		if isTimeout(err) {
			log.Warn("CloudFlare analytics request timed out")
			return errResult(KindTimeout, "CloudFlare API timeout", boolPtr(true))
		}
		log.WithError(err).Error("CloudFlare analytics request failed")
		return errResult(KindTransport, err.Error(), boolPtr(configured))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status_code", resp.StatusCode).Warn("CloudFlare analytics returned non-200")
		return errResult(KindUpstreamStatus,
			fmt.Sprintf("CloudFlare API returned %d", resp.StatusCode), boolPtr(configured))
	}

	var analytics analyticsResponse
	if err := json.NewDecoder(resp.Body).Decode(&analytics); err != nil {
		log.WithError(err).Error("Failed to decode analytics response")
		return errResult(KindTransport, err.Error(), boolPtr(configured))
	}

	if len(analytics.Errors) > 0 {
		log.WithField("count", len(analytics.Errors)).Warn("CloudFlare GraphQL errors")
		return Result{Err: &Error{
			Kind:    KindUpstreamErrors,
			Message: "CloudFlare GraphQL errors",
			Details: analytics.Errors,
		}}
	}

	zones := analytics.Data.Viewer.Zones
	if len(zones) == 0 || zones[0].HourlyGroups == nil {
		return errResult(KindUpstreamSchema, "No analytics data available", boolPtr(true))
	}

	groups := *zones[0].HourlyGroups
	if len(groups) == 0 {
		// A legitimate "no traffic yet" state, not a failure.
		return Result{Metrics: emptySummary()}
	}

	var totals bucketSum
	for _, g := range groups {
		totals.Requests += g.Sum.Requests
		totals.Bytes += g.Sum.Bytes
		totals.CachedRequests += g.Sum.CachedRequests
		totals.CachedBytes += g.Sum.CachedBytes
		totals.Threats += g.Sum.Threats
	}

	zone := Zone{Name: "unknown", Status: "unknown", Plan: "unknown"}
	if z, err := a.client.ZoneDetails(ctx); err != nil {
		log.WithError(err).Warn("Zone details lookup failed")
	} else {
		zone = z
	}

	return Result{Metrics: buildMetrics(totals, zone)}
}

// buildMetrics derives ratios and health from the summed buckets.
func buildMetrics(totals bucketSum, zone Zone) *Metrics {
	var hitRatio float64
	if totals.Requests > 0 {
		hitRatio = round2(float64(totals.CachedRequests) / float64(totals.Requests) * 100)
	}

	active := zone.Status == "active"
	return &Metrics{
		Zone: zone,
		Requests: RequestStats{
			Total:         totals.Requests,
			Cached:        totals.CachedRequests,
			Uncached:      totals.Requests - totals.CachedRequests,
			CacheHitRatio: hitRatio,
		},
		Bandwidth: BandwidthStats{
			TotalBytes:  totals.Bytes,
			TotalGB:     round2(float64(totals.Bytes) / (1 << 30)),
			CachedBytes: totals.CachedBytes,
		},
		Security:   SecurityStats{ThreatsBlocked: totals.Threats},
		Health:     Health{ZoneActive: active, Alert: !active},
		Configured: true,
	}
}

// emptySummary is the zero-valued payload for a zone with no buckets yet.
func emptySummary() *Metrics {
	return &Metrics{
		Zone:       Zone{Name: "unknown", Status: "unknown", Plan: "unknown"},
		Health:     Health{ZoneActive: true, Alert: false},
		Configured: true,
		Note:       noDataNote,
	}
}

func errResult(kind ErrorKind, message string, configured *bool) Result {
	return Result{Err: &Error{Kind: kind, Message: message, Configured: configured}}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func boolPtr(b bool) *bool { return &b }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

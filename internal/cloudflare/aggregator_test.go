package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestAggregator points an aggregator at a fake CloudFlare API.
func newTestAggregator(t *testing.T, handler http.Handler) *Aggregator {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		CFZoneID:  "zone123",
		CFAPIKey:  "test-key",
		CFAPIBase: server.URL,
	}
	logger := testLogger()
	return NewAggregator(logger, cfg, NewClient(logger, cfg))
}

func analyticsBody(groups string) string {
	return fmt.Sprintf(`{"data":{"viewer":{"zones":[{"httpRequests1hGroups":%s}]}}}`, groups)
}

func zoneBody(name, status, plan string) string {
	return fmt.Sprintf(`{"result":{"name":%q,"status":%q,"plan":{"name":%q}}}`, name, status, plan)
}

func TestCollect_SumsHourlyBuckets(t *testing.T) {
	agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/graphql":
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("Authorization = %q, want bearer token", got)
			}
			io.WriteString(w, analyticsBody(`[
				{"sum":{"requests":600,"bytes":1073741824,"cachedRequests":400,"cachedBytes":536870912,"threats":3},"dimensions":{"datetime":"2025-06-01T10:00:00Z"}},
				{"sum":{"requests":400,"bytes":536870912,"cachedRequests":350,"cachedBytes":268435456,"threats":2},"dimensions":{"datetime":"2025-06-01T11:00:00Z"}}
			]`))
		case r.Method == http.MethodGet && r.URL.Path == "/zones/zone123":
			io.WriteString(w, zoneBody("example.com", "active", "Free Website"))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	res := agg.Collect(context.Background())
	if res.Err != nil {
		t.Fatalf("Collect returned error: %v", res.Err)
	}
	m := res.Metrics

	if m.Requests.Total != 1000 {
		t.Errorf("Requests.Total = %d, want 1000", m.Requests.Total)
	}
	if m.Requests.Cached != 750 {
		t.Errorf("Requests.Cached = %d, want 750", m.Requests.Cached)
	}
	if m.Requests.Uncached != 250 {
		t.Errorf("Requests.Uncached = %d, want 250", m.Requests.Uncached)
	}
	if m.Requests.CacheHitRatio != 75 {
		t.Errorf("CacheHitRatio = %v, want 75", m.Requests.CacheHitRatio)
	}
	if m.Bandwidth.TotalBytes != 1610612736 {
		t.Errorf("TotalBytes = %d, want 1610612736", m.Bandwidth.TotalBytes)
	}
	if m.Bandwidth.TotalGB != 1.5 {
		t.Errorf("TotalGB = %v, want 1.5", m.Bandwidth.TotalGB)
	}
	if m.Bandwidth.CachedBytes != 805306368 {
		t.Errorf("CachedBytes = %d, want 805306368", m.Bandwidth.CachedBytes)
	}
	if m.Security.ThreatsBlocked != 5 {
		t.Errorf("ThreatsBlocked = %d, want 5", m.Security.ThreatsBlocked)
	}
	if m.Zone.Name != "example.com" || m.Zone.Status != "active" || m.Zone.Plan != "Free Website" {
		t.Errorf("Zone = %+v, want example.com/active/Free Website", m.Zone)
	}
	if !m.Health.ZoneActive || m.Health.Alert {
		t.Errorf("Health = %+v, want active without alert", m.Health)
	}
	if !m.Configured {
		t.Error("Configured = false, want true")
	}
}

func TestCollect_EmptyBucketsIsZeroSummaryNotError(t *testing.T) {
	agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, analyticsBody(`[]`))
	}))

	res := agg.Collect(context.Background())
	if res.Err != nil {
		t.Fatalf("Collect returned error: %v", res.Err)
	}
	m := res.Metrics

	if m.Requests.Total != 0 || m.Requests.CacheHitRatio != 0 || m.Bandwidth.TotalBytes != 0 || m.Security.ThreatsBlocked != 0 {
		t.Errorf("zero summary carries non-zero values: %+v", m)
	}
	if !m.Configured {
		t.Error("Configured = false, want true")
	}
	if m.Note == "" {
		t.Error("zero summary must carry an explanatory note")
	}
	if !m.Health.ZoneActive || m.Health.Alert {
		t.Errorf("Health = %+v, want active without alert", m.Health)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := payload["error"]; ok {
		t.Error("zero summary must not carry an error key")
	}
}

func TestCollect_UpstreamStatus(t *testing.T) {
	agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	res := agg.Collect(context.Background())
	if res.Err == nil {
		t.Fatal("Collect returned success, want error")
	}
	if res.Err.Kind != KindUpstreamStatus {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindUpstreamStatus)
	}
	if res.Err.Message != "CloudFlare API returned 403" {
		t.Errorf("Message = %q, want %q", res.Err.Message, "CloudFlare API returned 403")
	}
	if res.Err.Configured == nil || !*res.Err.Configured {
		t.Errorf("Configured = %v, want true", res.Err.Configured)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["error"] != "CloudFlare API returned 403" {
		t.Errorf(`payload["error"] = %v`, payload["error"])
	}
	if payload["configured"] != true {
		t.Errorf(`payload["configured"] = %v, want true`, payload["configured"])
	}
	if _, ok := payload["details"]; ok {
		t.Error("status error must not carry details")
	}
}

func TestCollect_GraphQLErrors(t *testing.T) {
	agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors":[{"message":"zoneTag is invalid"}]}`)
	}))

	res := agg.Collect(context.Background())
	if res.Err == nil {
		t.Fatal("Collect returned success, want error")
	}
	if res.Err.Kind != KindUpstreamErrors {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindUpstreamErrors)
	}
	if res.Err.Message != "CloudFlare GraphQL errors" {
		t.Errorf("Message = %q", res.Err.Message)
	}
	if len(res.Err.Details) != 1 {
		t.Errorf("Details has %d entries, want 1", len(res.Err.Details))
	}
}

func TestCollect_MissingZoneData(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no zones", `{"data":{"viewer":{"zones":[]}}}`},
		{"zone without hourly groups", `{"data":{"viewer":{"zones":[{}]}}}`},
		{"null hourly groups", `{"data":{"viewer":{"zones":[{"httpRequests1hGroups":null}]}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.body)
			}))

			res := agg.Collect(context.Background())
			if res.Err == nil {
				t.Fatal("Collect returned success, want error")
			}
			if res.Err.Kind != KindUpstreamSchema {
				t.Errorf("Kind = %q, want %q", res.Err.Kind, KindUpstreamSchema)
			}
			if res.Err.Message != "No analytics data available" {
				t.Errorf("Message = %q", res.Err.Message)
			}
			if res.Err.Configured == nil || !*res.Err.Configured {
				t.Errorf("Configured = %v, want true", res.Err.Configured)
			}
		})
	}
}

func TestCollect_ZoneDetailsFailureDegrades(t *testing.T) {
	agg := newTestAggregator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/graphql" {
			io.WriteString(w, analyticsBody(`[{"sum":{"requests":10,"bytes":100,"cachedRequests":5,"cachedBytes":50,"threats":0},"dimensions":{"datetime":"2025-06-01T10:00:00Z"}}]`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	res := agg.Collect(context.Background())
	if res.Err != nil {
		t.Fatalf("Collect returned error: %v", res.Err)
	}
	m := res.Metrics

	if m.Zone.Name != "unknown" || m.Zone.Status != "unknown" || m.Zone.Plan != "unknown" {
		t.Errorf("Zone = %+v, want all unknown", m.Zone)
	}
	if m.Health.ZoneActive {
		t.Error("ZoneActive = true, want false for unknown status")
	}
	if !m.Health.Alert {
		t.Error("Alert = false, want true for unknown status")
	}
	if m.Requests.Total != 10 || m.Requests.Cached != 5 {
		t.Errorf("Requests = %+v, want totals preserved", m.Requests)
	}
}

func TestCollect_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		CFZoneID:  "zone123",
		CFAPIKey:  "test-key",
		CFAPIBase: server.URL,
	}
	logger := testLogger()
	client := NewClient(logger, cfg)
	client.httpClient.Timeout = 20 * time.Millisecond
	agg := NewAggregator(logger, cfg, client)

	res := agg.Collect(context.Background())
	if res.Err == nil {
		t.Fatal("Collect returned success, want timeout error")
	}
	if res.Err.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindTimeout)
	}
	if res.Err.Message != "CloudFlare API timeout" {
		t.Errorf("Message = %q, want %q", res.Err.Message, "CloudFlare API timeout")
	}
	if res.Err.Configured == nil || !*res.Err.Configured {
		t.Errorf("Configured = %v, want true", res.Err.Configured)
	}
}

func TestCollect_UnconfiguredFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{CFAPIBase: server.URL}
	logger := testLogger()
	agg := NewAggregator(logger, cfg, NewClient(logger, cfg))

	res := agg.Collect(context.Background())
	if res.Err == nil {
		t.Fatal("Collect returned success, want error")
	}
	if res.Err.Configured == nil || *res.Err.Configured {
		t.Errorf("Configured = %v, want false without credentials", res.Err.Configured)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{33.333333, 33.33},
		{66.666666, 66.67},
		{100, 100},
	}
	for _, tc := range cases {
		if got := round2(tc.in); got != tc.want {
			t.Errorf("round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

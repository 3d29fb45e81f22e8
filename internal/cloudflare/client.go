package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/config"
)

// requestTimeout bounds each outbound CloudFlare call.
const requestTimeout = 10 * time.Second

// analyticsQuery pulls hourly request aggregates for the trailing day. The
// document shape is part of the provider contract and must not drift.
const analyticsQuery = `
query ZoneAnalytics($zoneTag: String!, $start: Time!) {
    viewer {
        zones(filter: { zoneTag: $zoneTag }) {
            httpRequests1hGroups(
                limit: 24
                filter: { datetime_gt: $start }
            ) {
                sum {
                    requests
                    bytes
                    cachedBytes
                    cachedRequests
                    threats
                }
                dimensions {
                    datetime
                }
            }
        }
    }
}`

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type bucketSum struct {
	Requests       int64 `json:"requests"`
	Bytes          int64 `json:"bytes"`
	CachedBytes    int64 `json:"cachedBytes"`
	CachedRequests int64 `json:"cachedRequests"`
	Threats        int64 `json:"threats"`
}

type hourlyGroup struct {
	Sum        bucketSum `json:"sum"`
	Dimensions struct {
		Datetime string `json:"datetime"`
	} `json:"dimensions"`
}

type zoneAnalytics struct {
	// Pointer so a zone that lacks the field entirely (nil) is
	// distinguishable from one reporting an empty bucket list.
	HourlyGroups *[]hourlyGroup `json:"httpRequests1hGroups"`
}

type analyticsResponse struct {
	Data struct {
		Viewer struct {
			Zones []zoneAnalytics `json:"zones"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

type zoneDetailsResponse struct {
	Result struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Plan   struct {
			Name string `json:"name"`
		} `json:"plan"`
	} `json:"result"`
}

type loggingTransport struct {
	log *logrus.Entry
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// Client issues the two CloudFlare API calls the aggregator needs.
type Client struct {
	httpClient *http.Client
	cfg        *config.Config
	log        *logrus.Entry
}

func NewClient(logger *logrus.Logger, cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: &loggingTransport{log: logger.WithField("component", "cloudflare_transport")},
		},
		cfg: cfg,
		log: logger.WithField("component", "cloudflare_client"),
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.CFAPIKey)
	req.Header.Set("Content-Type", "application/json")
}

// ZoneAnalytics posts the hourly-analytics GraphQL query for the window
// starting at start. The raw response is returned so the aggregator can
// apply its status-code precedence rules.
func (c *Client) ZoneAnalytics(ctx context.Context, start time.Time) (*http.Response, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: analyticsQuery,
		Variables: map[string]string{
			"zoneTag": c.cfg.CFZoneID,
			"start":   start.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode analytics query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CFAPIBase+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	return c.httpClient.Do(req)
}

// ZoneDetails fetches zone name, status and plan over the REST endpoint.
func (c *Client) ZoneDetails(ctx context.Context) (Zone, error) {
	url := fmt.Sprintf("%s/zones/%s", c.cfg.CFAPIBase, c.cfg.CFZoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Zone{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Zone{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Zone{}, fmt.Errorf("zone details returned %d", resp.StatusCode)
	}

	var details zoneDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return Zone{}, fmt.Errorf("decode zone details: %w", err)
	}
	return Zone{
		Name:   details.Result.Name,
		Status: details.Result.Status,
		Plan:   details.Result.Plan.Name,
	}, nil
}

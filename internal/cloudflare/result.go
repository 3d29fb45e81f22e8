package cloudflare

import "encoding/json"

// ErrorKind discriminates failure causes for callers and tests; it is not
// part of the wire payload.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "timeout"
	KindTransport      ErrorKind = "transport"
	KindUpstreamStatus ErrorKind = "upstream_status"
	KindUpstreamSchema ErrorKind = "upstream_schema"
	KindUpstreamErrors ErrorKind = "upstream_errors"
)

// Error is the structured error payload for CDN failures. Configured is a
// pointer because the GraphQL-errors variant omits the flag entirely.
type Error struct {
	Kind       ErrorKind         `json:"-"`
	Message    string            `json:"error"`
	Details    []json.RawMessage `json:"details,omitempty"`
	Configured *bool             `json:"configured,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Metrics is the successful 24-hour CDN summary.
type Metrics struct {
	Zone       Zone           `json:"zone"`
	Requests   RequestStats   `json:"requests_24h"`
	Bandwidth  BandwidthStats `json:"bandwidth_24h"`
	Security   SecurityStats  `json:"security_24h"`
	Health     Health         `json:"health"`
	Configured bool           `json:"configured"`
	Note       string         `json:"note,omitempty"`
}

type Zone struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Plan   string `json:"plan"`
}

type RequestStats struct {
	Total         int64   `json:"total"`
	Cached        int64   `json:"cached"`
	Uncached      int64   `json:"uncached"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

type BandwidthStats struct {
	TotalBytes  int64   `json:"total_bytes"`
	TotalGB     float64 `json:"total_gb"`
	CachedBytes int64   `json:"cached_bytes"`
}

type SecurityStats struct {
	ThreatsBlocked int64 `json:"threats_blocked"`
}

type Health struct {
	ZoneActive bool `json:"zone_active"`
	Alert      bool `json:"alert"`
}

// Result is a tagged success-or-error value serializing to exactly one of
// the documented payload shapes.
type Result struct {
	Metrics *Metrics
	Err     *Error
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	return json.Marshal(r.Metrics)
}

package immich

import "encoding/json"

// ErrorKind discriminates failure causes so callers and tests do not have
// to pattern-match message strings. It never appears on the wire.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindQuery      ErrorKind = "query"
)

// Error is the single-field error payload documented for the upload
// aggregator: {"error": <message>}.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
	}{Error: e.Message})
}

// Metrics is the successful upload-metrics payload.
type Metrics struct {
	TotalAssets int64       `json:"total_assets"`
	Uploads     UploadStats `json:"uploads"`
	Users       UserStats   `json:"users"`
	LastUpload  LastUpload  `json:"last_upload"`
	Health      Health      `json:"health"`
}

type UploadStats struct {
	Last1h      int64   `json:"last_1h"`
	Last24h     int64   `json:"last_24h"`
	Last7d      int64   `json:"last_7d"`
	Last30d     int64   `json:"last_30d"`
	RatePerHour float64 `json:"rate_per_hour"`
}

type UserStats struct {
	Total     int64 `json:"total"`
	Admins    int64 `json:"admins"`
	Active24h int64 `json:"active_24h"`
}

// LastUpload carries nulls rather than zero values when no asset exists.
type LastUpload struct {
	Timestamp  *string `json:"timestamp"`
	MinutesAgo *int64  `json:"minutes_ago"`
}

type Health struct {
	IsActive bool `json:"is_active"`
	Alert    bool `json:"alert"`
}

// Result is a tagged success-or-error value. It serializes to either the
// full metrics object or the {"error": ...} payload, never both.
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

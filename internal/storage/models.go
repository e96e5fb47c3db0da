package storage

import (
	"encoding/json"
	"time"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

// Bucket names for bbolt database
const (
	ResolutionsBucket = "resolutions"
	RequestsBucket    = "requests"
	MetaBucket        = "meta"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
)

// Current schema version
const CurrentSchemaVersion = 1

// ResolutionState is the lifecycle state of a stored resolution.
type ResolutionState string

const (
	// StatePending means the resolution may still be dispatched.
	StatePending ResolutionState = "pending"
	// StateDispatching means a dispatch holds the claim and is launching the host.
	StateDispatching ResolutionState = "dispatching"
	// StateDispatched means the host accepted the flow; a completion is awaited.
	StateDispatched ResolutionState = "dispatched"
	// StateCompleted means the host reported a result code.
	StateCompleted ResolutionState = "completed"
	// StateCanceled means the issuer invalidated the resolution before use.
	StateCanceled ResolutionState = "canceled"
)

// ResolutionRecord is a persisted single-use resolution capability together
// with the outcome of its interactive flow.
type ResolutionRecord struct {
	Token       string               `json:"token"`
	Service     string               `json:"service"`
	Code        connresult.ErrorCode `json:"error_code"`
	Intent      connresult.Intent    `json:"intent"`
	State       ResolutionState      `json:"state"`
	RequestID   int                  `json:"request_id,omitempty"`
	ResultCode  *int                 `json:"result_code,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	Created     time.Time            `json:"created"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Dispatched  *time.Time           `json:"dispatched_at,omitempty"`
	Finished    *time.Time           `json:"finished_at,omitempty"`
	Attempts    int                  `json:"attempts"`
	Correlation string               `json:"correlation_id,omitempty"`
}

// Expired reports whether a pending record can no longer be dispatched.
func (r *ResolutionRecord) Expired(now time.Time) bool {
	return r.State == StatePending && !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Retry reports whether the completion asks the caller to retry the
// connection. It is false until a result code is recorded.
func (r *ResolutionRecord) Retry() bool {
	return r.ResultCode != nil && connresult.ShouldRetry(*r.ResultCode)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r *ResolutionRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (r *ResolutionRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

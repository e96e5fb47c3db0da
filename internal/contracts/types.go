// Package contracts defines typed data transfer objects for API communication
package contracts

import (
	"time"
)

// APIResponse is the standard wrapper for all API responses
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CodeInfo describes one error code of the taxonomy
type CodeInfo struct {
	Code           int    `json:"code"`
	Name           string `json:"name"`
	Recoverability string `json:"recoverability"`
	Action         string `json:"action,omitempty"`
	Description    string `json:"description"`
	Deprecated     bool   `json:"deprecated,omitempty"`
}

// CodesResponse lists the taxonomy
type CodesResponse struct {
	Codes []CodeInfo `json:"codes"`
}

// Result is the API view of a ConnectionResult
type Result struct {
	ErrorCode      int    `json:"error_code"`
	ErrorName      string `json:"error_name"`
	Recoverability string `json:"recoverability"`
	Action         string `json:"action,omitempty"`
	Success        bool   `json:"success"`
	HasResolution  bool   `json:"has_resolution"`
}

// ReportResponse is the classification of one attempt report
type ReportResponse struct {
	Service string `json:"service"`
	Result  Result `json:"result"`
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Resolution is the API view of a stored resolution
type Resolution struct {
	Token        string            `json:"token"`
	Service      string            `json:"service"`
	Code         int               `json:"error_code"`
	CodeName     string            `json:"error_name"`
	Action       string            `json:"action"`
	Target       string            `json:"target"`
	State        string            `json:"state"`
	RequestID    int               `json:"request_id,omitempty"`
	ResultCode   *int              `json:"result_code,omitempty"`
	Retry        bool              `json:"retry"`
	LastError    string            `json:"last_error,omitempty"`
	Attempts     int               `json:"attempts"`
	Created      time.Time         `json:"created"`
	ExpiresAt    time.Time         `json:"expires_at"`
	DispatchedAt *time.Time        `json:"dispatched_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// ResolutionsResponse is the resolution listing
type ResolutionsResponse struct {
	Resolutions []Resolution `json:"resolutions"`
	Total       int          `json:"total"`
}

// StartRequest asks the daemon to dispatch a stored resolution
type StartRequest struct {
	RequestID int `json:"request_id"`
}

// CompletionRequest delivers the result of an interactive flow
type CompletionRequest struct {
	RequestID  int `json:"request_id"`
	ResultCode int `json:"result_code"`
}

// CompletionResponse reports what the caller should do next
type CompletionResponse struct {
	Token      string `json:"token"`
	Service    string `json:"service"`
	RequestID  int    `json:"request_id"`
	ResultCode int    `json:"result_code"`
	Retry      bool   `json:"retry"`
}

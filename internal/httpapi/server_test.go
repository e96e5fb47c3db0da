package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
	"github.com/smart-mcp-proxy/connresult/internal/host"
	"github.com/smart-mcp-proxy/connresult/internal/observability"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
	"github.com/smart-mcp-proxy/connresult/internal/resolution"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockController struct {
	records     map[string]*storage.ResolutionRecord
	startErr    error
	started     []int
	completeErr error
	lastReport  classify.Report
	lastCorrID  string
}

func newMockController() *mockController {
	return &mockController{
		records: map[string]*storage.ResolutionRecord{
			"tok-1": {
				Token:     "tok-1",
				Service:   "drive",
				Code:      connresult.SignInRequired,
				Intent:    connresult.Intent{Action: "sign_in", Target: "https://accounts.example.com"},
				State:     storage.StatePending,
				Created:   testNow,
				ExpiresAt: testNow.Add(15 * time.Minute),
			},
			"tok-old": {
				Token:     "tok-old",
				Service:   "mail",
				Code:      connresult.ServiceDisabled,
				Intent:    connresult.Intent{Action: "enable", Target: "https://example.com/enable"},
				State:     storage.StatePending,
				Created:   testNow.Add(-time.Hour),
				ExpiresAt: testNow.Add(-time.Minute),
			},
		},
	}
}

func (m *mockController) Remediate(ctx context.Context, report classify.Report) (*resolution.Outcome, error) {
	m.lastReport = report
	m.lastCorrID = reqcontext.GetCorrelationID(ctx)
	if report.Service == "broken" {
		return nil, fmt.Errorf("failed to save resolution: disk full")
	}
	return &resolution.Outcome{
		Result:  connresult.New(connresult.SignInRequired, connresult.NewOneShot(connresult.Intent{Target: "x"})),
		Summary: "Sign-in required",
		Token:   "tok-new",
	}, nil
}

func (m *mockController) ListResolutions() ([]*storage.ResolutionRecord, error) {
	return []*storage.ResolutionRecord{m.records["tok-1"], m.records["tok-old"]}, nil
}

func (m *mockController) GetResolution(token string) (*storage.ResolutionRecord, error) {
	if r, ok := m.records[token]; ok {
		return r, nil
	}
	return nil, connresult.ErrResolutionNotFound
}

func (m *mockController) StartResolution(_ context.Context, token string, requestID int) error {
	if m.startErr != nil {
		return m.startErr
	}
	record, ok := m.records[token]
	if !ok {
		return &connresult.DispatchError{RequestID: requestID, Err: connresult.ErrResolutionNotFound}
	}
	m.started = append(m.started, requestID)
	record.State = storage.StateDispatched
	record.RequestID = requestID
	return nil
}

func (m *mockController) CancelResolution(_ context.Context, token string) (*storage.ResolutionRecord, error) {
	record, ok := m.records[token]
	if !ok {
		return nil, connresult.ErrResolutionNotFound
	}
	record.State = storage.StateCanceled
	return record, nil
}

func (m *mockController) CompleteRequest(_ context.Context, requestID, resultCode int) (*storage.ResolutionRecord, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &storage.ResolutionRecord{Token: "tok-1", Service: "drive", RequestID: requestID, ResultCode: &resultCode}, nil
}

func newTestServer(t *testing.T, ctrl Controller) *Server {
	t.Helper()
	srv := NewServer(ctrl, zaptest.NewLogger(t).Sugar(), nil)
	srv.now = func() time.Time { return testNow }
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) (bool, T, string) {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Data    T      `json:"data"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Success, resp.Data, resp.Error
}

func TestHandleGetCodes(t *testing.T) {
	srv := newTestServer(t, newMockController())

	w := do(t, srv, http.MethodGet, "/api/v1/codes", "")
	require.Equal(t, http.StatusOK, w.Code)

	ok, data, _ := decode[contracts.CodesResponse](t, w)
	assert.True(t, ok)
	assert.Len(t, data.Codes, len(connresult.Codes()))
	assert.Equal(t, "SUCCESS", data.Codes[0].Name)
}

func TestHandleReport(t *testing.T) {
	t.Run("classifies and returns token", func(t *testing.T) {
		ctrl := newMockController()
		srv := newTestServer(t, ctrl)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports",
			strings.NewReader(`{"service":"drive","installed_version":"2.0.0","signed_in":false}`))
		req.Header.Set(reqcontext.CorrelationIDHeader, "corr-abc")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "corr-abc", w.Header().Get(reqcontext.CorrelationIDHeader))
		assert.Equal(t, "corr-abc", ctrl.lastCorrID)
		require.NotNil(t, ctrl.lastReport.SignedIn)
		assert.False(t, *ctrl.lastReport.SignedIn)

		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				Result struct {
					ErrorCode     int    `json:"error_code"`
					ErrorName     string `json:"error_name"`
					HasResolution bool   `json:"has_resolution"`
				} `json:"result"`
				Token string `json:"token"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 4, resp.Data.Result.ErrorCode)
		assert.Equal(t, "SIGN_IN_REQUIRED", resp.Data.Result.ErrorName)
		assert.True(t, resp.Data.Result.HasResolution)
		assert.Equal(t, "tok-new", resp.Data.Token)
	})

	t.Run("generates correlation id when invalid", func(t *testing.T) {
		srv := newTestServer(t, newMockController())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(`{"service":"drive"}`))
		req.Header.Set(reqcontext.CorrelationIDHeader, "bad id!")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		got := w.Header().Get(reqcontext.CorrelationIDHeader)
		assert.NotEqual(t, "bad id!", got)
		assert.True(t, reqcontext.IsValidCorrelationID(got))
	})

	t.Run("rejects missing service", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/reports", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/reports", `{"service":"drive","bogus":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage failure is 500", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/reports", `{"service":"broken"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		ok, _, msg := decode[json.RawMessage](t, w)
		assert.False(t, ok)
		assert.Contains(t, msg, "disk full")
	})
}

func TestHandleListResolutions(t *testing.T) {
	srv := newTestServer(t, newMockController())

	w := do(t, srv, http.MethodGet, "/api/v1/resolutions", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, data, _ := decode[contracts.ResolutionsResponse](t, w)
	require.Equal(t, 2, data.Total)
	assert.Equal(t, "pending", data.Resolutions[0].State)
	assert.Equal(t, "expired", data.Resolutions[1].State)

	w = do(t, srv, http.MethodGet, "/api/v1/resolutions?state=expired", "")
	_, data, _ = decode[contracts.ResolutionsResponse](t, w)
	require.Equal(t, 1, data.Total)
	assert.Equal(t, "tok-old", data.Resolutions[0].Token)

	w = do(t, srv, http.MethodGet, "/api/v1/resolutions?service=drive", "")
	_, data, _ = decode[contracts.ResolutionsResponse](t, w)
	require.Equal(t, 1, data.Total)
	assert.Equal(t, "tok-1", data.Resolutions[0].Token)
}

func TestHandleGetResolution(t *testing.T) {
	srv := newTestServer(t, newMockController())

	w := do(t, srv, http.MethodGet, "/api/v1/resolutions/tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, data, _ := decode[contracts.Resolution](t, w)
	assert.Equal(t, "SIGN_IN_REQUIRED", data.CodeName)

	w = do(t, srv, http.MethodGet, "/api/v1/resolutions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStartResolution(t *testing.T) {
	t.Run("dispatches with request id", func(t *testing.T) {
		ctrl := newMockController()
		srv := newTestServer(t, ctrl)

		w := do(t, srv, http.MethodPost, "/api/v1/resolutions/tok-1/start", `{"request_id":1001}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []int{1001}, ctrl.started)

		_, data, _ := decode[contracts.Resolution](t, w)
		assert.Equal(t, "dispatched", data.State)
		assert.Equal(t, 1001, data.RequestID)
	})

	t.Run("request id is required", func(t *testing.T) {
		ctrl := newMockController()
		w := do(t, newTestServer(t, ctrl), http.MethodPost, "/api/v1/resolutions/tok-1/start", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, ctrl.started)
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"consumed", &connresult.DispatchError{Err: connresult.ErrResolutionConsumed}, http.StatusConflict},
		{"canceled", &connresult.DispatchError{Err: connresult.ErrResolutionCanceled}, http.StatusConflict},
		{"expired", &connresult.DispatchError{Err: connresult.ErrResolutionExpired}, http.StatusGone},
		{"not found", &connresult.DispatchError{Err: connresult.ErrResolutionNotFound}, http.StatusNotFound},
		{"request in use", &connresult.DispatchError{Err: storage.ErrRequestInUse}, http.StatusConflict},
		{"request in flight", &connresult.DispatchError{Err: fmt.Errorf("host refused: %w", host.ErrRequestInFlight)}, http.StatusConflict},
		{"host failure", &connresult.DispatchError{Err: fmt.Errorf("host refused to launch sign_in: no browser")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.startErr = tt.err
			w := do(t, newTestServer(t, ctrl), http.MethodPost, "/api/v1/resolutions/tok-1/start", `{"request_id":1}`)
			assert.Equal(t, tt.want, w.Code)
			ok, _, msg := decode[json.RawMessage](t, w)
			assert.False(t, ok)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestHandleCancelResolution(t *testing.T) {
	srv := newTestServer(t, newMockController())

	w := do(t, srv, http.MethodPost, "/api/v1/resolutions/tok-1/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, data, _ := decode[contracts.Resolution](t, w)
	assert.Equal(t, "canceled", data.State)

	w = do(t, srv, http.MethodPost, "/api/v1/resolutions/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCompletion(t *testing.T) {
	t.Run("ok result asks for retry", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/completions", `{"request_id":1001,"result_code":-1}`)
		require.Equal(t, http.StatusOK, w.Code)
		_, data, _ := decode[contracts.CompletionResponse](t, w)
		assert.True(t, data.Retry)
		assert.Equal(t, "tok-1", data.Token)
	})

	t.Run("canceled result is explicit zero", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/completions", `{"request_id":1001,"result_code":0}`)
		require.Equal(t, http.StatusOK, w.Code)
		_, data, _ := decode[contracts.CompletionResponse](t, w)
		assert.False(t, data.Retry)
	})

	t.Run("missing result code", func(t *testing.T) {
		w := do(t, newTestServer(t, newMockController()), http.MethodPost, "/api/v1/completions", `{"request_id":1001}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not awaiting completion", func(t *testing.T) {
		ctrl := newMockController()
		ctrl.completeErr = storage.ErrNotAwaitingCompletion
		w := do(t, newTestServer(t, ctrl), http.MethodPost, "/api/v1/completions", `{"request_id":1,"result_code":-1}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHealthzWithoutObservability(t *testing.T) {
	w := do(t, newTestServer(t, newMockController()), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestObservabilityRoutes(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	obs, err := observability.NewManager(logger, observability.TracingConfig{ServiceName: "connresult-test"})
	require.NoError(t, err)
	obs.RegisterHealthChecker(observability.NewCheckFunc("storage", func(context.Context) error { return nil }))

	srv := NewServer(newMockController(), logger, obs)

	w := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health observability.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)

	w = do(t, srv, http.MethodGet, "/api/v1/resolutions/tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `path="/api/v1/resolutions/{token}`)
	assert.NotContains(t, body, "tok-1")
}

func TestStatusForError_Default(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusForError(io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusGone, statusForError(fmt.Errorf("wrapped: %w", connresult.ErrResolutionExpired)))
	assert.Equal(t, http.StatusBadGateway, statusForError(&connresult.DispatchError{Err: bytes.ErrTooLarge}))
}

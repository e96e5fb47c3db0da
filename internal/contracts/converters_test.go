package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

func TestConvertCodes(t *testing.T) {
	infos := ConvertCodes(connresult.Codes())
	require.Len(t, infos, len(connresult.Codes()))

	byCode := map[int]CodeInfo{}
	for _, info := range infos {
		byCode[info.Code] = info
	}

	_, hasTwelve := byCode[12]
	assert.False(t, hasTwelve)

	assert.Equal(t, "SIGN_IN_REQUIRED", byCode[4].Name)
	assert.Equal(t, "resolvable", byCode[4].Recoverability)
	assert.Equal(t, "sign_in", byCode[4].Action)
	assert.True(t, byCode[1500].Deprecated)
	assert.False(t, byCode[0].Deprecated)
}

func TestConvertResolution(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ok := connresult.ResultOK
	record := &storage.ResolutionRecord{
		Token:   "01HZZZ",
		Service: "drive",
		Code:    connresult.SignInRequired,
		Intent: connresult.Intent{
			Action: "sign_in",
			Target: "https://accounts.example.com",
			Extras: map[string]string{"account": "alice"},
		},
		State:      storage.StateCompleted,
		RequestID:  1001,
		ResultCode: &ok,
		Attempts:   1,
		Created:    created,
		ExpiresAt:  created.Add(15 * time.Minute),
	}

	view := ConvertResolution(record, false)
	assert.Equal(t, "completed", view.State)
	assert.Equal(t, 4, view.Code)
	assert.Equal(t, "SIGN_IN_REQUIRED", view.CodeName)
	assert.True(t, view.Retry)
	assert.Equal(t, "alice", view.Extras["account"])

	record.State = storage.StatePending
	assert.Equal(t, "expired", ConvertResolution(record, true).State)
}

func TestConvertResult(t *testing.T) {
	res := ConvertResult(connresult.New(connresult.ServiceDisabled, connresult.NewOneShot(connresult.Intent{Target: "x"})))
	assert.Equal(t, Result{
		ErrorCode:      3,
		ErrorName:      "SERVICE_DISABLED",
		Recoverability: "resolvable",
		Action:         "enable",
		HasResolution:  true,
	}, res)

	assert.True(t, ConvertResult(connresult.ConnectionResult{}).Success)
}

func TestEnvelope(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse("resolution expired"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"resolution expired"}`, string(data))

	data, err = json.Marshal(NewSuccessResponse(StartRequest{RequestID: 3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"request_id":3}}`, string(data))
}

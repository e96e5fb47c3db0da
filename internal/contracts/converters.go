package contracts

import (
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

// ConvertCodes converts the taxonomy to typed CodeInfo entries
func ConvertCodes(codes []connresult.ErrorCode) []CodeInfo {
	result := make([]CodeInfo, 0, len(codes))
	for _, c := range codes {
		result = append(result, CodeInfo{
			Code:           int(c),
			Name:           c.String(),
			Recoverability: string(c.Recoverability()),
			Action:         c.Action(),
			Description:    c.Description(),
			Deprecated:     c.IsDeprecated(),
		})
	}
	return result
}

// ConvertResult converts a ConnectionResult to its API view
func ConvertResult(result connresult.ConnectionResult) Result {
	code := result.ErrorCode()
	return Result{
		ErrorCode:      int(code),
		ErrorName:      code.String(),
		Recoverability: string(code.Recoverability()),
		Action:         code.Action(),
		Success:        result.IsSuccess(),
		HasResolution:  result.HasResolution(),
	}
}

// ConvertResolution converts a stored record to its API view
func ConvertResolution(record *storage.ResolutionRecord, expired bool) Resolution {
	state := string(record.State)
	if expired {
		state = "expired"
	}
	return Resolution{
		Token:        record.Token,
		Service:      record.Service,
		Code:         int(record.Code),
		CodeName:     record.Code.String(),
		Action:       record.Intent.Action,
		Target:       record.Intent.Target,
		State:        state,
		RequestID:    record.RequestID,
		ResultCode:   record.ResultCode,
		Retry:        record.Retry(),
		LastError:    record.LastError,
		Attempts:     record.Attempts,
		Created:      record.Created,
		ExpiresAt:    record.ExpiresAt,
		DispatchedAt: record.Dispatched,
		FinishedAt:   record.Finished,
		Extras:       record.Intent.Extras,
	}
}

// NewSuccessResponse wraps data in a successful envelope
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse wraps message in a failed envelope
func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

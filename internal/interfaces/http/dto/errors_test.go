package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeInvalidJSON, http.StatusBadRequest},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{shared.CodeValidation, http.StatusBadRequest},
		{shared.CodeNotFound, http.StatusNotFound},
		{shared.CodeOverAllocation, http.StatusConflict},
		{shared.CodeAlreadyPaid, http.StatusConflict},
		{shared.CodeAlreadySettled, http.StatusConflict},
		{shared.CodeStaleState, http.StatusConflict},
		{shared.CodeConcurrencyConflict, http.StatusConflict},
		{shared.CodeTransport, http.StatusBadGateway},
		{shared.CodePersistence, http.StatusServiceUnavailable},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(shared.CodeStaleState))
	assert.True(t, IsRetryable(shared.CodeTransport))
	assert.True(t, IsRetryable(ErrCodeRateLimited))
	assert.False(t, IsRetryable(shared.CodeValidation))
	assert.False(t, IsRetryable(shared.CodeOverAllocation))
	assert.False(t, IsRetryable(shared.CodeAlreadyPaid))
}

func TestErrorResponseJSON(t *testing.T) {
	resp := NewErrorResponseWithRequestID(shared.CodePersistence, "storage unavailable", "req-1")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, shared.CodePersistence, errInfo["code"])
	assert.Equal(t, "req-1", errInfo["request_id"])
	assert.Equal(t, true, errInfo["retryable"])
}

func TestValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Request validation failed", "req-2", []ValidationDetail{
		{Field: "amount", Message: "must be a valid amount"},
	})

	assert.False(t, resp.Success)
	assert.Equal(t, shared.CodeValidation, resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "amount", resp.Error.Details[0].Field)
}

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConstructors_StatusAndCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidationError("bad input").HTTPStatus)
	assert.Equal(t, http.StatusConflict, NewConflictError("duplicate").HTTPStatus)
	assert.Equal(t, "node not found", NewNotFoundError("node").Message)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("node").HTTPStatus)

	tr := NewInvalidTransitionError("node", "deprecated", "active")
	assert.Equal(t, http.StatusConflict, tr.HTTPStatus)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", tr.Code)
	assert.True(t, IsInvalidTransition(tr))

	capErr := NewCapabilityError("completion", fmt.Errorf("upstream 503"))
	assert.Equal(t, http.StatusBadGateway, capErr.HTTPStatus)
	assert.Equal(t, "CAPABILITY_FAILED", capErr.Code)
	assert.True(t, IsCapability(capErr))
}

func TestAppError_ChainTraversal(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	dbErr := NewDatabaseError("list nodes", cause)
	wrapped := fmt.Errorf("loading graph: %w", dbErr)

	require.True(t, IsAppError(wrapped))
	appErr := GetAppError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeDatabase, appErr.Type)
	assert.True(t, errors.Is(wrapped, cause))

	assert.Nil(t, GetAppError(fmt.Errorf("plain")))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := NewDatabaseError("create node", fmt.Errorf("duplicate key"))
	assert.Contains(t, err.Error(), "DATABASE")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nodes/x", nil)

	h.Handle(rec, req, NewNotFoundError("node"))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Error)
	assert.Equal(t, string(ErrorTypeNotFound), resp.Type)
	assert.Equal(t, "node not found", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestErrorHandler_HidesInternalsOutsideDebug(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.Handle(rec, req, fmt.Errorf("pool exhausted at 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	assert.Contains(t, rec.Body.String(), "An internal error occurred")
}

func TestErrorHandler_DebugExposesCauseAndStack(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.Handle(rec, req, NewDatabaseError("create node", fmt.Errorf("duplicate key")))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Details)
	assert.Equal(t, "duplicate key", resp.Details["cause"])
	assert.Contains(t, resp.Details, "stack_trace")
}

func TestErrorHandler_HandleStatusMapsType(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.HandleStatus(rec, req, http.StatusUnauthorized, "Missing authentication token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(ErrorTypeUnauthorized), resp.Type)
	assert.Equal(t, "Missing authentication token", resp.Message)
}

func TestErrorHandler_RecoveryTurnsPanicInto500(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := h.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil dereference somewhere deep")
	}))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrorTypeInternal))
}

package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON envelope every failed request returns
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorHandler renders errors as HTTP responses. Outside debug mode the
// cause chain and stack traces never reach the client.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle renders err, taking status, code and message from the AppError
// in its chain when there is one. Anything else becomes an opaque 500.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{
		Error:     true,
		Type:      string(ErrorTypeInternal),
		Message:   "An internal error occurred",
		RequestID: chimiddleware.GetReqID(r.Context()),
	}

	if appErr := GetAppError(err); appErr != nil {
		if appErr.HTTPStatus != 0 {
			status = appErr.HTTPStatus
		}
		resp.Type = string(appErr.Type)
		resp.Message = appErr.Message
		resp.Code = appErr.Code
		if h.debug {
			resp.Details = debugDetails(appErr)
		}
	} else if h.debug {
		resp.Message = err.Error()
	}

	h.log(r, err, status, resp)
	h.write(w, status, resp)
}

// HandleStatus renders a rejection that has no error value behind it,
// deriving the envelope type from the status code.
func (h *ErrorHandler) HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{
		Error:     true,
		Type:      typeForStatus(status),
		Message:   message,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}

	h.logger.Warn("request rejected",
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("message", message),
	)
	h.write(w, status, resp)
}

// Recovery converts downstream panics into standard 500 envelopes
func (h *ErrorHandler) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// debugDetails exposes the cause chain and stack trace, debug mode only
func debugDetails(appErr *AppError) map[string]interface{} {
	out := make(map[string]interface{}, 2)
	if appErr.Cause != nil {
		out["cause"] = appErr.Cause.Error()
	}
	if appErr.StackTrace != "" {
		out["stack_trace"] = appErr.StackTrace
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h *ErrorHandler) log(r *http.Request, err error, status int, resp ErrorResponse) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("errorType", resp.Type),
		zap.Error(err),
	}
	if resp.Code != "" {
		fields = append(fields, zap.String("errorCode", resp.Code))
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(resp.Message, fields...)
		return
	}
	h.logger.Warn(resp.Message, fields...)
}

func (h *ErrorHandler) write(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(ErrorTypeValidation)
	case http.StatusUnauthorized:
		return string(ErrorTypeUnauthorized)
	case http.StatusForbidden:
		return string(ErrorTypeForbidden)
	case http.StatusNotFound:
		return string(ErrorTypeNotFound)
	case http.StatusConflict:
		return string(ErrorTypeConflict)
	case http.StatusRequestTimeout:
		return string(ErrorTypeTimeout)
	case http.StatusBadGateway:
		return string(ErrorTypeExternal)
	case http.StatusServiceUnavailable:
		return string(ErrorTypeUnavailable)
	}
	return string(ErrorTypeInternal)
}

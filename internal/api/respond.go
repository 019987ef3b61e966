package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/invoicecraft/studio/internal/apperr"
)

const correlationHeader = "X-Correlation-Id"

type corrKey struct{}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	CorrID    string              `json:"corrId,omitempty"`
	Retryable bool                `json:"retryable"`
	Errors    []apperr.FieldError `json:"errors,omitempty"`
}

// correlation picks the caller's X-Correlation-Id, falling back to the chi
// request id, and echoes it on the response.
func correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get(correlationHeader)
		if corrID == "" {
			corrID = middleware.GetReqID(r.Context())
		}
		if corrID == "" {
			corrID = uuid.NewString()
		}
		w.Header().Set(correlationHeader, corrID)
		ctx := context.WithValue(r.Context(), corrKey{}, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func corrIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(corrKey{}).(string)
	return id
}

// CorrelationLogger scopes logger to one request.
func CorrelationLogger(logger *slog.Logger, corrID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("corrId", corrID)
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return CorrelationLogger(s.logger, corrIDFrom(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSONStatus(w, status, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRender, apperr.KindDispatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the error taxonomy. Errors outside it are
// reported as INTERNAL_ERROR without leaking their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	corrID := corrIDFrom(r.Context())
	log := CorrelationLogger(s.logger, corrID)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:      "INTERNAL_ERROR",
			Message:   "internal error",
			CorrID:    corrID,
			Retryable: true,
		})
		return
	}

	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "code", appErr.Kind, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "code", appErr.Kind, "error", err)
	}
	writeJSON(w, status, errorBody{
		Code:      string(appErr.Kind),
		Message:   err.Error(),
		CorrID:    corrID,
		Retryable: apperr.Retryable(err),
		Errors:    appErr.Fields,
	})
}

func writeCode(w http.ResponseWriter, r *http.Request, status int, code, message string, retryable bool) {
	writeJSON(w, status, errorBody{
		Code:      code,
		Message:   message,
		CorrID:    corrIDFrom(r.Context()),
		Retryable: retryable,
	})
}

func decodeJSON(body io.ReadCloser, v any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return apperr.NewValidation("api.decode", "invalid JSON",
			apperr.FieldError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
	}
	return nil
}

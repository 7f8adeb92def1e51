package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// writeError maps typed domain errors to status codes. Database failures are
// logged with their cause but reach the caller as a generic message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		compileErr   *domain.CompileError
		validation   *domain.DataValidationError
		notFound     *domain.DocumentNotFoundError
		denied       *domain.ResourceAccessDeniedError
		injection    *domain.VariableInjectionError
		badIndex     *domain.InvalidIndexOptionsError
		missingIndex *domain.IndexNotFoundError
		dbErr        *domain.DatabaseError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "data validation failed", Issues: validation.Issues})
	case errors.As(err, &compileErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: compileErr.Error()})
	case errors.As(err, &injection):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: injection.Error()})
	case errors.As(err, &badIndex):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: badIndex.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.As(err, &missingIndex):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: missingIndex.Error()})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "resource access denied"})
	case errors.As(err, &dbErr):
		log.Error("database failure", zap.String("op", dbErr.Op), zap.Error(dbErr.Cause))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal storage error"})
	default:
		log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

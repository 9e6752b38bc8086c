package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boddenberg/crm-api-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.MessageResponse{Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeMessage(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parsePagination reads ?page and ?limit. Missing or malformed values come
// back as 0 and the service applies its defaults.
func parsePagination(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			page = p
		}
	}
	if v := q.Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	return
}

// handleServiceError maps domain errors to HTTP responses. Only the generic
// message of each kind reaches the client.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var invalidCredentials *domain.ErrInvalidCredentials
	var unauthenticated *domain.ErrUnauthenticated
	var invalidToken *domain.ErrInvalidToken
	var forbidden *domain.ErrForbidden
	var notFound *domain.ErrNotFound
	var conflict *domain.ErrConflict
	var internal *domain.ErrInternal

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &invalidCredentials):
		writeError(w, http.StatusBadRequest, invalidCredentials.Error())
	case errors.As(err, &unauthenticated):
		logger.Debug("unauthenticated", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, unauthenticated.Error())
	case errors.As(err, &invalidToken):
		logger.Debug("invalid token", zap.String("reason", invalidToken.Reason))
		writeError(w, http.StatusForbidden, "Invalid refresh token")
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("rule", forbidden.Action))
		writeError(w, http.StatusForbidden, forbidden.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("resource", notFound.Resource), zap.String("id", notFound.ID))
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, conflict.Error())
	case errors.As(err, &internal):
		logger.Error("internal error", zap.String("op", internal.Op), zap.Error(internal.Err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

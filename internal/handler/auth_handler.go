package handler

import (
	"net/http"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Auth: /api/auth
// ============================================================

func authRegisterHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if _, err := authSvc.Register(ctx, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeMessage(w, http.StatusCreated, "User registered successfully")
	}
}

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func authRefreshHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/refresh")
		defer span.End()

		var req domain.RefreshRequest
		if err := decode(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		pair, err := authSvc.Refresh(ctx, req.RefreshToken)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, pair)
	}
}

// authLogoutHandler answers 200 whether or not the token matched anything.
// A body that does not decode carries no token and is treated as empty.
func authLogoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/logout")
		defer span.End()

		var req domain.RefreshRequest
		if err := decode(w, r, &req); err != nil {
			logger.Debug("logout body ignored", zap.Error(err))
			req = domain.RefreshRequest{}
		}

		if err := authSvc.Logout(ctx, req.RefreshToken); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeMessage(w, http.StatusOK, "Logged out successfully")
	}
}

func authProfileHandler(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, authSvc.Profile(caller))
	}
}

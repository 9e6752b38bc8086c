package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const callerKey contextKey = "caller"

// AccessGuard authenticates requests from their Authorization header. Access
// tokens are self-contained; no store lookup happens here, so a role change
// only applies once the current access token expires.
type AccessGuard struct {
	tokens *service.TokenService
}

// NewAccessGuard creates an access guard over the token service.
func NewAccessGuard(tokens *service.TokenService) *AccessGuard {
	return &AccessGuard{tokens: tokens}
}

// Authenticate validates a raw "Bearer <token>" header value.
func (g *AccessGuard) Authenticate(header string) (domain.Caller, error) {
	if header == "" {
		return domain.Caller{}, &domain.ErrUnauthenticated{Message: "No token provided"}
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return domain.Caller{}, &domain.ErrUnauthenticated{Message: "Invalid token format"}
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		return domain.Caller{}, &domain.ErrUnauthenticated{Message: "Invalid or expired token"}
	}
	return claims.Caller(), nil
}

// JWTAuthMiddleware rejects unauthenticated requests with 401 and injects the
// caller into the request context.
func JWTAuthMiddleware(guard *AccessGuard, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := guard.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("auth: request rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("reason", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext extracts the authenticated caller from context.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(domain.Caller)
	return caller, ok
}

// requireCaller writes 401 when the route was mounted without the guard.
func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
	}
	return caller, ok
}

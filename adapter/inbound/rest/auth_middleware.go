package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// AuthMiddleware accepts session tokens from the Authorization header
type AuthMiddleware struct {
	tokenService inbound.TokenService
	logger       outbound.Logger
}

func NewAuthMiddleware(tokenService inbound.TokenService, logger outbound.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		logger:       logger,
	}
}

func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			m.unauthorized(w, r)
			return
		}

		subject, err := m.tokenService.VerifyToken(token)
		if err != nil {
			m.logger.Warn("Session token rejected", "path", r.URL.Path, "kind", model.KindOf(err).String())
			writeError(w, r, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), model.Principal{
			Username: subject,
			Kind:     model.TokenKindSession,
		})))
	})
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request) {
	m.logger.Debug("Missing bearer token", "path", r.URL.Path)
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "not authenticated", Kind: model.KindInvalidToken.String()})
}

// RequireAdmin runs after one of the authenticating middlewares
func RequireAdmin(authz inbound.AuthorizationService, logger outbound.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, logger, model.ErrNotAdmin)
				return
			}
			if err := authz.RequireAdmin(r.Context(), principal.Username); err != nil {
				logger.Warn("Forbidden access", "user", principal.Username, "path", r.URL.Path)
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(model.Principal)
	return p, ok && p.Username != ""
}

// extractBearer also reads ?access_token= on websocket upgrades, browsers cannot set headers there
func extractBearer(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

package rest

import (
	"net/http"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const APITokenHeader = "X-API-Token"

// APIKeyMiddleware accepts long-lived API keys from the X-API-Token header
type APIKeyMiddleware struct {
	tokenService inbound.TokenService
	logger       outbound.Logger
}

func NewAPIKeyMiddleware(tokenService inbound.TokenService, logger outbound.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		tokenService: tokenService,
		logger:       logger,
	}
}

func (m *APIKeyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(APITokenHeader)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "missing API token", Kind: model.KindInvalidToken.String()})
			return
		}

		username, err := m.tokenService.VerifyAPIToken(r.Context(), token)
		if err != nil {
			m.logger.Warn("API token rejected",
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr,
				"kind", model.KindOf(err).String())
			writeError(w, r, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), model.Principal{
			Username: username,
			Kind:     model.TokenKindAPI,
		})))
	})
}

package rest

import (
	"net/http"

	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type HybridMiddleware struct {
	apiKeyMiddleware *APIKeyMiddleware
	jwtMiddleware    *AuthMiddleware
	logger           outbound.Logger
}

func NewHybridMiddleware(
	apiKeyMiddleware *APIKeyMiddleware,
	jwtMiddleware *AuthMiddleware,
	logger outbound.Logger,
) *HybridMiddleware {
	return &HybridMiddleware{
		apiKeyMiddleware: apiKeyMiddleware,
		jwtMiddleware:    jwtMiddleware,
		logger:           logger,
	}
}

const (
	AuthSchemeAPIKey = "APIKey"
	AuthSchemeJWT    = "JWT"
)

// Middleware routes to the API key check when the header is present, JWT otherwise
func (h *HybridMiddleware) Middleware(next http.Handler) http.Handler {
	apiKey := h.apiKeyMiddleware.Middleware(next)
	jwt := h.jwtMiddleware.Middleware(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := h.GetAuthenticationMethod(r)
		h.logger.Debug("Routing authentication", "scheme", scheme, "path", r.URL.Path, "method", r.Method)

		if scheme == AuthSchemeAPIKey {
			apiKey.ServeHTTP(w, r)
			return
		}
		jwt.ServeHTTP(w, r)
	})
}

// GetAuthenticationMethod names the scheme a request will be checked with
func (h *HybridMiddleware) GetAuthenticationMethod(r *http.Request) string {
	if r.Header.Get(APITokenHeader) != "" {
		return AuthSchemeAPIKey
	}
	return AuthSchemeJWT
}

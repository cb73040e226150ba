package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type AuthHandler struct {
	credentialService inbound.CredentialService
	tokenService      inbound.TokenService
	authzService      inbound.AuthorizationService
	config            *config.Config
	logger            outbound.Logger
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type CreateUserResponse struct {
	Detail string `json:"detail"`
	model.TokenResponse
}

type APITokenResponse struct {
	Detail string `json:"detail"`
	Token  string `json:"token"`
}

type VerifyTokenResponse struct {
	Detail   string `json:"detail"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

func NewAuthHandler(
	credentialService inbound.CredentialService,
	tokenService inbound.TokenService,
	authzService inbound.AuthorizationService,
	cfg *config.Config,
	logger outbound.Logger,
) *AuthHandler {
	return &AuthHandler{
		credentialService: credentialService,
		tokenService:      tokenService,
		authzService:      authzService,
		config:            cfg,
		logger:            logger,
	}
}

// CreateUser registers through a master password and logs the new user in
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req inbound.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.credentialService.CreateUser(r.Context(), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.tokenService.MintToken(req.Username, h.tokenService.LoginLifetime())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateUserResponse{
		Detail:        "User created successfully",
		TokenResponse: h.bearer(token),
	})
}

func (h *AuthHandler) CheckCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.credentialService.CheckCredentials(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Credentials are correct"})
}

// Login implements the OAuth2 password grant with form fields username and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	if err := h.credentialService.CheckCredentials(r.Context(), username, password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.tokenService.MintToken(username, h.tokenService.LoginLifetime())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("User logged in", "username", username)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.bearer(token))
}

// RefreshToken trades a valid session token for a fresh one with the default lifetime
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if principal.Kind != model.TokenKindSession {
		writeError(w, r, h.logger, model.ErrMalformedToken)
		return
	}

	token, err := h.tokenService.MintToken(principal.Username, h.tokenService.DefaultLifetime())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokenService.DefaultLifetime().Seconds()),
	})
}

// MintAPIToken checks the credentials in the body and issues an API key
func (h *AuthHandler) MintAPIToken(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.credentialService.CheckCredentials(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.tokenService.MintAPIToken(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, APITokenResponse{Detail: "Token minted successfully", Token: token})
}

func (h *AuthHandler) VerifyAPIToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	username, err := h.tokenService.VerifyAPIToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeVerified(w, r, username)
}

func (h *AuthHandler) VerifySessionToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	username, err := h.tokenService.VerifyToken(req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeVerified(w, r, username)
}

func (h *AuthHandler) writeVerified(w http.ResponseWriter, r *http.Request, username string) {
	admin, err := h.authzService.IsAdmin(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyTokenResponse{Detail: "Token is valid", Username: username, Admin: admin})
}

func (h *AuthHandler) RevokeAPIToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.tokenService.RevokeAPIToken(r.Context(), principal.Username, mux.Vars(r)["token"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Token revoked"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, principal)
}

func (h *AuthHandler) AmIAdmin(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	admin, err := h.authzService.IsAdmin(r.Context(), principal.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	users, err := h.credentialService.ListUsers(r.Context(), principal.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	username := mux.Vars(r)["username"]

	if err := h.credentialService.DeleteUser(r.Context(), principal.Username, username); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "User deleted"})
}

// PublicConfig serves the running configuration without secrets
func (h *AuthHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Public())
}

func (h *AuthHandler) bearer(token string) model.TokenResponse {
	return model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokenService.LoginLifetime().Seconds()),
	}
}

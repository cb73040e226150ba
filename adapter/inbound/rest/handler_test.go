package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evnchn/3D-Print-Me/adapter/outbound/crypto"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/filesystem"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/memory"
	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/service"
)

const (
	normalMaster = "normal-master-secret"
	adminMaster  = "admin-master-secret"
	goodPassword = "Str0ng!Passw0rd"
)

type mockLogger struct{}

func (mockLogger) Debug(string, ...any) {}
func (mockLogger) Info(string, ...any)  {}
func (mockLogger) Warn(string, ...any)  {}
func (mockLogger) Error(string, ...any) {}

type testServer struct {
	handler   http.Handler
	factoryID string
	config    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := mockLogger{}

	cfg := config.DefaultConfig()
	cfg.HTTP.JWT.Secret = "test-secret"
	cfg.Security.MasterPasswords = map[string]string{"normal": normalMaster, "admin": adminMaster}
	cfg.Portal.MaxUploadMB = 1
	cfg.HTTP.CORS.Enabled = true
	cfg.HTTP.CORS.AllowedOrigins = []string{"https://portal.example"}

	users := memory.NewUserStore()
	authz := service.NewAuthorizationService(users, logger)
	hasher := crypto.NewArgon2Hasher(crypto.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32})
	creds := service.NewCredentialService(users, hasher, authz, nil, logger, service.CredentialConfig{
		MasterPasswords: cfg.Security.MasterPasswords,
		PrivilegedRoles: []string{"admin"},
	})
	tokens, err := service.NewTokenService(memory.NewAPITokenStore(), authz, nil, logger, service.TokenConfig{
		Secret: []byte(cfg.HTTP.JWT.Secret),
	})
	require.NoError(t, err)

	factoriesDir := t.TempDir()
	factoryID := model.NewPrefixedID(model.FactoryPrefix)
	require.NoError(t, os.MkdirAll(filepath.Join(factoriesDir, factoryID), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(factoriesDir, factoryID, "desc.json"), []byte(`{
		"name": "Printer",
		"cover_image": "cover.png",
		"accepted_file_types": ".stl",
		"fields": [
			{"name": "email", "description": "Contact", "__format__": "email"},
			{"name": "color", "description": "Filament", "__default__": "black"}
		]
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(factoriesDir, factoryID, "cover.png"), []byte("png"), 0644))

	factoryRepo, err := filesystem.NewFactoryRepository(factoriesDir, logger)
	require.NoError(t, err)
	factories := service.NewFactoryService(factoryRepo, nil, logger)
	require.NoError(t, factories.Start(context.Background()))
	t.Cleanup(func() { factories.Stop() })

	jobRepo, err := filesystem.NewJobRepository(t.TempDir(), logger)
	require.NoError(t, err)
	jobs := service.NewJobService(jobRepo, factories, authz, nil, logger)

	h := NewHandler(Services{
		Credentials:   creds,
		Tokens:        tokens,
		Authorization: authz,
		Factories:     factories,
		Jobs:          jobs,
	}, nil, cfg, nil, nil, logger)

	return &testServer{handler: h.Router(), factoryID: factoryID, config: cfg}
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	apiKey  string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.body.(type) {
	case nil:
	case io.Reader:
		body = b
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.apiKey != "" {
		r.Header.Set(APITokenHeader, req.apiKey)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) register(t *testing.T, role, master, username string) string {
	t.Helper()
	rec := s.do(t, request{method: "POST", path: "/api/userauth/create_user", body: inbound.CreateUserRequest{
		MasterUsername: role,
		MasterPassword: master,
		Username:       username,
		Password:       goodPassword,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CreateUserResponse](t, rec)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (s *testServer) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	return s.do(t, request{
		method:  "POST",
		path:    "/token",
		body:    strings.NewReader(form.Encode()),
		headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, request{method: "GET", path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "normal", normalMaster, "alice")

	tests := []struct {
		name   string
		req    inbound.CreateUserRequest
		status int
		kind   string
	}{
		{"duplicate", inbound.CreateUserRequest{MasterUsername: "normal", MasterPassword: normalMaster, Username: "alice", Password: goodPassword}, http.StatusConflict, "username_exists"},
		{"wrong master", inbound.CreateUserRequest{MasterUsername: "admin", MasterPassword: normalMaster, Username: "bob", Password: goodPassword}, http.StatusUnauthorized, "wrong_credentials"},
		{"unknown role", inbound.CreateUserRequest{MasterUsername: "root", MasterPassword: adminMaster, Username: "bob", Password: goodPassword}, http.StatusUnauthorized, "wrong_credentials"},
		{"weak password", inbound.CreateUserRequest{MasterUsername: "normal", MasterPassword: normalMaster, Username: "bob", Password: "password"}, http.StatusBadRequest, "insecure_password"},
		{"empty username", inbound.CreateUserRequest{MasterUsername: "normal", MasterPassword: normalMaster, Password: goodPassword}, http.StatusBadRequest, "null_user_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, request{method: "POST", path: "/api/userauth/create_user", body: tt.req})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decode[errorResponse](t, rec).Kind)
		})
	}

	rec := s.do(t, request{method: "POST", path: "/api/userauth/create_user", body: strings.NewReader("{")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckCredentialsAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "normal", normalMaster, "alice")

	rec := s.do(t, request{method: "POST", path: "/api/userauth/check_credentials", body: CredentialsRequest{Username: "alice", Password: goodPassword}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Credentials are correct", decode[detailResponse](t, rec).Detail)

	rec = s.do(t, request{method: "POST", path: "/api/userauth/check_credentials", body: CredentialsRequest{Username: "alice", Password: "nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	unknown := s.do(t, request{method: "POST", path: "/api/userauth/check_credentials", body: CredentialsRequest{Username: "mallory", Password: "nope"}})
	assert.Equal(t, rec.Body.String(), unknown.Body.String(), "unknown users look like wrong passwords")

	rec = s.login(t, "alice", goodPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode[model.TokenResponse](t, rec)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int64(1800), tok.ExpiresIn)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = s.do(t, request{method: "GET", path: "/user/me", token: tok.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[model.Principal](t, rec)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, model.TokenKindSession, me.Kind)

	rec = s.do(t, request{method: "GET", path: "/user/me/am_i_admin", token: tok.AccessToken})
	assert.Equal(t, "false", strings.TrimSpace(rec.Body.String()))

	assert.Equal(t, http.StatusUnauthorized, s.login(t, "alice", "bad").Code)
	assert.Equal(t, http.StatusBadRequest, s.login(t, "", "").Code)
}

func TestTokenRejections(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "normal", normalMaster, "alice")

	rec := s.do(t, request{method: "GET", path: "/user/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = s.do(t, request{method: "GET", path: "/user/me", token: "not-a-jwt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed_token", decode[errorResponse](t, rec).Kind)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	rec = s.do(t, request{method: "GET", path: "/user/me", token: tampered})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decode[errorResponse](t, rec).Kind)

	rec = s.do(t, request{method: "POST", path: "/api/verify_session", body: TokenRequest{Token: token}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[VerifyTokenResponse](t, rec).Username)

	rec = s.do(t, request{method: "POST", path: "/api/token/refresh", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(900), decode[model.TokenResponse](t, rec).ExpiresIn)
}

func TestAPITokens(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "normal", normalMaster, "alice")
	adminToken := s.register(t, "admin", adminMaster, "root")

	rec := s.do(t, request{method: "POST", path: "/api/mint_token", body: CredentialsRequest{Username: "alice", Password: goodPassword}})
	require.Equal(t, http.StatusOK, rec.Code)
	key := decode[APITokenResponse](t, rec).Token
	assert.True(t, model.IsPrefixedID(model.APITokenPrefix, key))

	rec = s.do(t, request{method: "POST", path: "/api/verify_token", body: TokenRequest{Token: key}})
	require.Equal(t, http.StatusOK, rec.Code)
	verified := decode[VerifyTokenResponse](t, rec)
	assert.Equal(t, "alice", verified.Username)
	assert.False(t, verified.Admin)

	rec = s.do(t, request{method: "GET", path: "/user/me", apiKey: key})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TokenKindAPI, decode[model.Principal](t, rec).Kind)

	// an API key is not a session token
	rec = s.do(t, request{method: "GET", path: "/user/me", token: key})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, request{method: "POST", path: "/api/token/refresh", apiKey: key})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: "POST", path: "/api/verify_token", body: TokenRequest{Token: "apitoken-nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, request{method: "POST", path: "/api/verify_token", body: TokenRequest{Token: model.NewPrefixedID(model.APITokenPrefix)}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: "DELETE", path: "/api/tokens/" + key, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, request{method: "GET", path: "/user/me", apiKey: key})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	userToken := s.register(t, "normal", normalMaster, "alice")
	adminToken := s.register(t, "admin", adminMaster, "root")

	rec := s.do(t, request{method: "GET", path: "/api/admin/users", token: userToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_admin", decode[errorResponse](t, rec).Kind)

	rec = s.do(t, request{method: "GET", path: "/user/me/am_i_admin", token: adminToken})
	assert.Equal(t, "true", strings.TrimSpace(rec.Body.String()))

	rec = s.do(t, request{method: "GET", path: "/api/admin/users", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var users struct {
		Users []model.UserView `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users.Users, 2)
	assert.Equal(t, "alice", users.Users[0].Username)
	assert.NotContains(t, rec.Body.String(), "pw_hash")

	rec = s.do(t, request{method: "GET", path: "/api/admin/config", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), adminMaster)
	assert.NotContains(t, rec.Body.String(), "test-secret")
	assert.Contains(t, rec.Body.String(), `"registrationRoles":["admin","normal"]`)

	rec = s.do(t, request{method: "DELETE", path: "/api/admin/users/alice", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, request{method: "DELETE", path: "/api/admin/users/alice", token: adminToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the session token outlives the account but grants nothing admin-only
	rec = s.do(t, request{method: "GET", path: "/api/admin/users", token: userToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func multipartBody(t *testing.T, name, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	userToken := s.register(t, "normal", normalMaster, "alice")
	otherToken := s.register(t, "normal", normalMaster, "bob")
	adminToken := s.register(t, "admin", adminMaster, "root")

	rec := s.do(t, request{method: "GET", path: "/api/factories", token: userToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), s.factoryID)

	rec = s.do(t, request{method: "GET", path: "/api/factories/" + s.factoryID + "/cover", token: userToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(t, request{method: "POST", path: "/api/jobs", token: userToken, body: NewJobRequest{Factory: "factory-bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, request{method: "POST", path: "/api/jobs", token: userToken, body: NewJobRequest{Factory: s.factoryID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[model.Job](t, rec)
	assert.Equal(t, model.JobNew, job.Status)
	jobPath := "/api/jobs/" + job.UUID

	rec = s.do(t, request{method: "GET", path: jobPath, token: otherToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, contentType := multipartBody(t, "part.stl", "solid")
	rec = s.do(t, request{method: "POST", path: jobPath + "/file", token: userToken, body: body, headers: map[string]string{"Content-Type": contentType}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "fields first")

	rec = s.do(t, request{method: "PUT", path: jobPath + "/fields", token: userToken, body: map[string]string{"email": "not-an-email"}})
	require.Equal(t, http.StatusOK, rec.Code)
	submitted := decode[SubmitFieldsResponse](t, rec)
	assert.False(t, submitted.Ready)
	require.Len(t, submitted.Issues, 1)
	assert.Equal(t, inbound.FieldIssue{Field: "email", Reason: service.IssueInvalidEmail}, submitted.Issues[0])

	rec = s.do(t, request{method: "PUT", path: jobPath + "/fields", token: userToken, body: map[string]string{"email": "alice@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	submitted = decode[SubmitFieldsResponse](t, rec)
	assert.True(t, submitted.Ready)
	assert.Equal(t, model.JobFieldsReady, submitted.Job.Status)
	assert.Equal(t, "black", submitted.Job.Fields["color"])

	body, contentType = multipartBody(t, "part.gcode", "G28")
	rec = s.do(t, request{method: "POST", path: jobPath + "/file", token: userToken, body: body, headers: map[string]string{"Content-Type": contentType}})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, contentType = multipartBody(t, "part.stl", "solid part")
	rec = s.do(t, request{method: "POST", path: jobPath + "/file", token: userToken, body: body, headers: map[string]string{"Content-Type": contentType}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.JobSubmitted, decode[model.Job](t, rec).Status)

	rec = s.do(t, request{method: "GET", path: jobPath + "/file", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "solid part", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "part.stl")

	rec = s.do(t, request{method: "PUT", path: "/api/admin/jobs/" + job.UUID + "/status", token: userToken, body: MarkStatusRequest{Status: model.JobAccepted}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, request{method: "PUT", path: "/api/admin/jobs/" + job.UUID + "/status", token: adminToken, body: MarkStatusRequest{Status: model.JobFinished}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, request{method: "GET", path: "/api/admin/jobs?factory=" + s.factoryID, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.UUID)

	rec = s.do(t, request{method: "GET", path: "/api/jobs", token: userToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.UUID)

	rec = s.do(t, request{method: "POST", path: "/api/admin/jobs/purge", token: adminToken, body: PurgeRequest{Status: model.JobFinished}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":1}`, rec.Body.String())

	rec = s.do(t, request{method: "GET", path: jobPath, token: userToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	userToken := s.register(t, "normal", normalMaster, "alice")

	rec := s.do(t, request{method: "POST", path: "/api/jobs", token: userToken, body: NewJobRequest{Factory: s.factoryID}})
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decode[model.Job](t, rec)

	body, contentType := multipartBody(t, "big.stl", strings.Repeat("x", 2<<20))
	rec = s.do(t, request{method: "POST", path: "/api/jobs/" + job.UUID + "/file", token: userToken, body: body, headers: map[string]string{"Content-Type": contentType}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, request{method: "OPTIONS", path: "/api/jobs", headers: map[string]string{
		"Origin":                        "https://portal.example",
		"Access-Control-Request-Method": "POST",
	}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(t, request{method: "GET", path: "/health", headers: map[string]string{"Origin": "https://evil.example"}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusForCoversEveryKind(t *testing.T) {
	expected := map[model.ErrorKind]int{
		model.KindUnexpected:       http.StatusInternalServerError,
		model.KindNullUserField:    http.StatusBadRequest,
		model.KindWrongCredentials: http.StatusUnauthorized,
		model.KindUsernameExists:   http.StatusConflict,
		model.KindInsecurePassword: http.StatusBadRequest,
		model.KindMalformedToken:   http.StatusBadRequest,
		model.KindInvalidToken:     http.StatusUnauthorized,
		model.KindExpiredToken:     http.StatusForbidden,
		model.KindNotAdmin:         http.StatusForbidden,
		model.KindNotFound:         http.StatusNotFound,
		model.KindNotOwner:         http.StatusForbidden,
		model.KindInvalidID:        http.StatusBadRequest,
		model.KindFieldsIncomplete: http.StatusUnprocessableEntity,
		model.KindInvalidJobState:  http.StatusConflict,
		model.KindFileTypeRejected: http.StatusUnsupportedMediaType,
	}
	for kind, status := range expected {
		assert.Equal(t, status, statusFor(kind), kind.String())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/x", nil), mockLogger{}, io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal server error","kind":"unexpected"}`, rec.Body.String())
}

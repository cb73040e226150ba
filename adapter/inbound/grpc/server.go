package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// Metadata keys read by the auth interceptor and set on failed calls
const (
	AuthorizationKey = "authorization"
	APITokenKey      = "x-api-token"
	ErrorKindKey     = "x-error-kind"
)

type principalKey struct{}

// Server serves AuthServer plus the standard health service
type Server struct {
	credentials inbound.CredentialService
	tokens      inbound.TokenService
	authz       inbound.AuthorizationService
	logger      outbound.Logger
	grpcServer  *grpc.Server
	health      *health.Server
}

var _ AuthServer = (*Server)(nil)

func NewServer(
	credentials inbound.CredentialService,
	tokens inbound.TokenService,
	authz inbound.AuthorizationService,
	logger outbound.Logger,
) *Server {
	s := &Server{
		credentials: credentials,
		tokens:      tokens,
		authz:       authz,
		logger:      logger,
		health:      health.NewServer(),
	}

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.authInterceptor))
	s.grpcServer.RegisterService(&authServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Start listens on address and serves in the background
func (s *Server) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		if err := s.Serve(lis); err != nil {
			s.logger.Error("gRPC server stopped", "error", err)
		}
	}()

	s.logger.Info("gRPC server started", "address", address)
	return nil
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop drains in-flight calls, forcing the shutdown after 10 seconds
func (s *Server) Stop() {
	s.logger.Info("Stopping gRPC server...")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(10 * time.Second):
		s.logger.Warn("gRPC server stop timed out, forcing shutdown")
		s.grpcServer.Stop()
	}
}

func (s *Server) CreateUser(ctx context.Context, req *inbound.CreateUserRequest) (*model.TokenResponse, error) {
	if err := s.credentials.CreateUser(ctx, *req); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.login(ctx, req.Username)
}

func (s *Server) CheckCredentials(ctx context.Context, req *CredentialsRequest) (*Empty, error) {
	if err := s.credentials.CheckCredentials(ctx, req.Username, req.Password); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) Login(ctx context.Context, req *CredentialsRequest) (*model.TokenResponse, error) {
	if err := s.credentials.CheckCredentials(ctx, req.Username, req.Password); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.login(ctx, req.Username)
}

func (s *Server) login(ctx context.Context, username string) (*model.TokenResponse, error) {
	token, err := s.tokens.MintToken(username, s.tokens.LoginLifetime())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.LoginLifetime().Seconds()),
	}, nil
}

func (s *Server) MintAPIToken(ctx context.Context, req *CredentialsRequest) (*APITokenResponse, error) {
	if err := s.credentials.CheckCredentials(ctx, req.Username, req.Password); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	token, err := s.tokens.MintAPIToken(ctx, req.Username)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &APITokenResponse{Token: token}, nil
}

func (s *Server) VerifyToken(ctx context.Context, req *TokenRequest) (*VerifyResponse, error) {
	username, err := s.tokens.VerifyToken(req.Token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.verified(ctx, username)
}

func (s *Server) VerifyAPIToken(ctx context.Context, req *TokenRequest) (*VerifyResponse, error) {
	username, err := s.tokens.VerifyAPIToken(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.verified(ctx, username)
}

func (s *Server) verified(ctx context.Context, username string) (*VerifyResponse, error) {
	admin, err := s.authz.IsAdmin(ctx, username)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &VerifyResponse{Username: username, Admin: admin}, nil
}

func (s *Server) WhoAmI(ctx context.Context, _ *Empty) (*PrincipalResponse, error) {
	principal, ok := ctx.Value(principalKey{}).(model.Principal)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	admin, err := s.authz.IsAdmin(ctx, principal.Username)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &PrincipalResponse{Username: principal.Username, Kind: principal.Kind, Admin: admin}, nil
}

// authenticatedMethods need a session token or an API key in the call metadata
var authenticatedMethods = map[string]bool{
	FullMethod("WhoAmI"): true,
}

func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !authenticatedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	var principal model.Principal

	if key := first(md, APITokenKey); key != "" {
		username, err := s.tokens.VerifyAPIToken(ctx, key)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		principal = model.Principal{Username: username, Kind: model.TokenKindAPI}
	} else {
		token, ok := strings.CutPrefix(first(md, AuthorizationKey), "Bearer ")
		if !ok || token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		username, err := s.tokens.VerifyToken(token)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		principal = model.Principal{Username: username, Kind: model.TokenKindSession}
	}

	return handler(context.WithValue(ctx, principalKey{}, principal), req)
}

func (s *Server) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in gRPC handler", "method", info.FullMethod, "panic", r)
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// toStatus maps a service error to a status and reports its kind in the trailer
func (s *Server) toStatus(ctx context.Context, err error) error {
	kind := model.KindOf(err)
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorKindKey, kind.String()))

	code := codeFor(kind)
	if code == codes.Internal {
		s.logger.Error("gRPC call failed", "error", err)
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeFor(kind model.ErrorKind) codes.Code {
	switch kind {
	case model.KindNullUserField, model.KindInsecurePassword, model.KindMalformedToken,
		model.KindInvalidID, model.KindFieldsIncomplete, model.KindFileTypeRejected:
		return codes.InvalidArgument
	case model.KindWrongCredentials, model.KindInvalidToken:
		return codes.Unauthenticated
	case model.KindExpiredToken, model.KindNotAdmin, model.KindNotOwner:
		return codes.PermissionDenied
	case model.KindNotFound:
		return codes.NotFound
	case model.KindUsernameExists:
		return codes.AlreadyExists
	case model.KindInvalidJobState:
		return codes.FailedPrecondition
	case model.KindUnexpected:
		return codes.Internal
	}
	return codes.Internal
}

package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
)

const ServiceName = "portal.auth.v1.AuthService"

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type VerifyResponse struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type APITokenResponse struct {
	Token string `json:"token"`
}

type PrincipalResponse struct {
	Username string          `json:"username"`
	Kind     model.TokenKind `json:"kind"`
	Admin    bool            `json:"admin"`
}

type Empty struct{}

// AuthServer is the credential and token API exposed over gRPC
type AuthServer interface {
	CreateUser(ctx context.Context, req *inbound.CreateUserRequest) (*model.TokenResponse, error)
	CheckCredentials(ctx context.Context, req *CredentialsRequest) (*Empty, error)
	Login(ctx context.Context, req *CredentialsRequest) (*model.TokenResponse, error)
	MintAPIToken(ctx context.Context, req *CredentialsRequest) (*APITokenResponse, error)
	VerifyToken(ctx context.Context, req *TokenRequest) (*VerifyResponse, error)
	VerifyAPIToken(ctx context.Context, req *TokenRequest) (*VerifyResponse, error)
	WhoAmI(ctx context.Context, req *Empty) (*PrincipalResponse, error)
}

// FullMethod returns the wire name of method, e.g. "/portal.auth.v1.AuthService/Login"
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateUser", AuthServer.CreateUser),
		unary("CheckCredentials", AuthServer.CheckCredentials),
		unary("Login", AuthServer.Login),
		unary("MintAPIToken", AuthServer.MintAPIToken),
		unary("VerifyToken", AuthServer.VerifyToken),
		unary("VerifyAPIToken", AuthServer.VerifyAPIToken),
		unary("WhoAmI", AuthServer.WhoAmI),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](name string, call func(AuthServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			})
		},
	}
}

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// AuthBackend is the request boundary the auth RPCs call into.
// *gateway.Gateway implements it.
type AuthBackend interface {
	Register(ctx context.Context, in services.NewUser) (*models.User, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, page, size int) (*services.UserPage, error)
}

// AuthHandler serves pb.AuthService.
type AuthHandler struct {
	pb.UnimplementedAuthServiceServer

	backend AuthBackend
	logger  logging.Logger
}

func NewAuthHandler(b AuthBackend, l logging.Logger) *AuthHandler {
	return &AuthHandler{backend: b, logger: l.With("module", "auth_handler")}
}

// Registrar mounts the handler on a server.
func (h *AuthHandler) Registrar() Registrar {
	return func(s grpc.ServiceRegistrar) {
		pb.RegisterAuthServiceServer(s, h)
	}
}

func (h *AuthHandler) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.User, error) {
	user, err := h.backend.Register(ctx, services.NewUser{
		Email:    req.GetEmail(),
		Username: req.GetUsername(),
		Name:     req.GetName(),
		Password: req.GetPassword(),
	})
	if err != nil {
		return nil, ToStatus(err)
	}

	logging.From(ctx, h.logger).Info(ctx, "Registered", "user_id", user.ID)
	return toPBUser(user), nil
}

func (h *AuthHandler) Login(ctx context.Context, req *pb.LoginRequest) (*pb.TokenPair, error) {
	device := req.GetDevice()
	if device == "" {
		device = userAgent(ctx)
	}

	pair, err := h.backend.Login(ctx, services.LoginRequest{
		Identifier: req.GetIdentifier(),
		Password:   req.GetPassword(),
		Device:     device,
	})
	if err != nil {
		return nil, ToStatus(err)
	}
	return toPBTokenPair(pair), nil
}

func (h *AuthHandler) Refresh(ctx context.Context, req *pb.RefreshRequest) (*pb.TokenPair, error) {
	pair, err := h.backend.Refresh(ctx, req.GetRefreshToken())
	if err != nil {
		return nil, ToStatus(err)
	}
	return toPBTokenPair(pair), nil
}

func (h *AuthHandler) Logout(ctx context.Context, req *pb.LogoutRequest) (*pb.LogoutResponse, error) {
	if err := h.backend.Logout(ctx, req.GetRefreshToken()); err != nil {
		return nil, ToStatus(err)
	}
	return &pb.LogoutResponse{}, nil
}

func (h *AuthHandler) LogoutAll(ctx context.Context, _ *pb.LogoutAllRequest) (*pb.LogoutAllResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	n, err := h.backend.LogoutAll(ctx, userID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &pb.LogoutAllResponse{Revoked: n}, nil
}

func (h *AuthHandler) Me(ctx context.Context, _ *pb.MeRequest) (*pb.User, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.backend.GetUser(ctx, userID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return toPBUser(user), nil
}

func (h *AuthHandler) DeleteMe(ctx context.Context, _ *pb.DeleteMeRequest) (*pb.DeleteMeResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.backend.DeleteUser(ctx, userID); err != nil {
		return nil, ToStatus(err)
	}

	logging.From(ctx, h.logger).Info(ctx, "Deleted", "user_id", userID)
	return &pb.DeleteMeResponse{}, nil
}

// ListUsers treats a zero page or size as the first page of the default size.
func (h *AuthHandler) ListUsers(ctx context.Context, req *pb.ListUsersRequest) (*pb.ListUsersResponse, error) {
	page, size := int(req.GetPage()), int(req.GetSize())
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = services.DefaultPageSize
	}

	res, err := h.backend.ListUsers(ctx, page, size)
	if err != nil {
		return nil, ToStatus(err)
	}

	out := &pb.ListUsersResponse{
		Users: make([]*pb.User, 0, len(res.Users)),
		Total: res.Total,
		Page:  int32(res.Page),
		Size:  int32(res.Size),
		Pages: int32(res.Pages),
	}
	for _, u := range res.Users {
		out.Users = append(out.Users, toPBUser(u))
	}
	return out, nil
}

func callerID(ctx context.Context) (int64, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func userAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("user-agent"); len(v) > 0 {
		return v[0]
	}
	return ""
}

func toPBUser(u *models.User) *pb.User {
	return &pb.User{
		Id:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Name:      u.Name,
		Active:    u.Active,
		CreatedAt: u.CreatedAt.Unix(),
	}
}

func toPBTokenPair(p *services.TokenPair) *pb.TokenPair {
	return &pb.TokenPair{
		UserId:           p.UserID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt.Unix(),
		RefreshExpiresAt: p.RefreshExpiresAt.Unix(),
		TokenType:        p.TokenType,
	}
}

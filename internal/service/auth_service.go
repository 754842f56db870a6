package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitton/internal/auth"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/rpc"
	"github.com/mmynk/splitton/internal/storage"
	"github.com/mmynk/splitton/internal/ton"
)

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	users         storage.UserStore
	logger        *slog.Logger
}

var _ rpc.AuthServiceHandler = (*AuthService)(nil)

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, users storage.UserStore, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		users:         users,
		logger:        logger,
	}
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, req *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error) {
	s.logger.Info("Register request", "username", req.Msg.Username)

	wallet := strings.TrimSpace(req.Msg.WalletAddress)
	if wallet != "" && !ton.IsValidAddress(wallet) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid wallet address"))
	}

	// Register user
	user, err := s.authenticator.Register(ctx, req.Msg.Username, req.Msg.DisplayName, req.Msg.Password)
	if err != nil {
		s.logger.Error("Registration failed", "username", req.Msg.Username, "error", err)
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			return nil, connect.NewError(connect.CodeAlreadyExists, auth.ErrUsernameTaken)
		case errors.Is(err, auth.ErrWeakPassword):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if wallet != "" {
		user.WalletAddress = wallet
		if err := s.users.UpdateUser(ctx, user); err != nil {
			s.logger.Warn("Failed to store default wallet", "user_id", user.ID, "error", err)
			user.WalletAddress = ""
		}
	}

	// Generate JWT token
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("User registered successfully", "user_id", user.ID)
	return connect.NewResponse(&rpc.RegisterResponse{
		Token: token,
		User:  userInfo(user),
	}), nil
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error) {
	s.logger.Info("Login request", "username", req.Msg.Username)

	user, err := s.authenticator.Authenticate(ctx, req.Msg.Username, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "username", req.Msg.Username, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return connect.NewResponse(&rpc.LoginResponse{
		Token: token,
		User:  userInfo(user),
	}), nil
}

func userInfo(u *models.User) rpc.UserInfo {
	return rpc.UserInfo{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		WalletAddress: u.WalletAddress,
	}
}

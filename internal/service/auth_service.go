package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/jwt"
	"github.com/xxxsen/docchat/internal/pkg/password"
	"github.com/xxxsen/docchat/internal/repo"
)

type AuthService struct {
	users           *repo.UserRepo
	jwtSecret       []byte
	jwtTTL          time.Duration
	defaultDocLimit int
}

func NewAuthService(users *repo.UserRepo, secret []byte, ttl time.Duration, defaultDocLimit int) *AuthService {
	return &AuthService{users: users, jwtSecret: secret, jwtTTL: ttl, defaultDocLimit: defaultDocLimit}
}

func (s *AuthService) Register(ctx context.Context, email, plainPassword string) (*model.User, string, error) {
	user, err := s.CreateUser(ctx, email, plainPassword, model.RoleUser, s.defaultDocLimit)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CreateUser writes a user row directly, it backs both the register endpoint
// and the adduser command.
func (s *AuthService) CreateUser(ctx context.Context, email, plainPassword, role string, docLimit int) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || plainPassword == "" {
		return nil, appErr.ErrInvalid
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, appErr.ErrInvalid
	}
	if err := password.Validate(plainPassword); err != nil {
		return nil, fmt.Errorf("%w: %s", appErr.ErrInvalid, err.Error())
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	user := &model.User{
		ID:            newID(),
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		DocumentLimit: docLimit,
		Ctime:         now,
		Mtime:         now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) issueToken(user *model.User) (string, error) {
	return jwt.GenerateToken(user.ID, user.Email, user.Role, s.jwtSecret, s.jwtTTL)
}

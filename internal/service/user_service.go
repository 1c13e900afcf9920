package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

const DefaultTokenTTL = 24 * time.Hour

type CreateUserDTO struct {
	Username string     `json:"username" binding:"required"`
	Email    string     `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required,min=6"`
	Role     model.Role `json:"role" binding:"required"`
}

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID       uuid.UUID  `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserService is the directory of requesters and approvers.
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserDTO) (UserResponse, error)
	Login(ctx context.Context, req LoginDTO) (TokenResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (UserResponse, error)
	ListByRole(ctx context.Context, role model.Role) ([]UserResponse, error)
}

type userService struct {
	repo     repository.UserRepository
	secret   []byte
	tokenTTL time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewUserService(repo repository.UserRepository, secret []byte, timeout time.Duration) UserService {
	return &userService{repo: repo, secret: secret, tokenTTL: DefaultTokenTTL, timeout: timeout, now: time.Now}
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserDTO) (UserResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case req.Username == "":
		return UserResponse{}, invalid("username", "is required")
	case !req.Role.Valid():
		return UserResponse{}, invalid("role", "must be requester, manager, project_manager or admin")
	case len(req.Password) < 6:
		return UserResponse{}, invalid("password", "must be at least 6 characters")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return UserResponse{}, invalid("username", "already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserResponse{}, err
	}
	user := &model.User{
		Username: req.Username,
		Email:    strings.TrimSpace(req.Email),
		Password: string(hashed),
		Role:     req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return UserResponse{}, storeErr(ctx, err, "create user")
	}
	return toUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginDTO) (TokenResponse, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}

	expiresAt := s.now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return TokenResponse{}, errors.New("failed to generate token")
	}

	return TokenResponse{
		Token:     signed,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		User:      toUserResponse(user),
	}, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (UserResponse, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, storeErr(ctx, err, "load user")
	}
	return toUserResponse(user), nil
}

func (s *userService) ListByRole(ctx context.Context, role model.Role) ([]UserResponse, error) {
	if !role.Valid() {
		return nil, invalid("role", "unknown role")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, storeErr(ctx, err, "list users")
	}
	result := make([]UserResponse, 0, len(users))
	for i := range users {
		result = append(result, toUserResponse(&users[i]))
	}
	return result, nil
}

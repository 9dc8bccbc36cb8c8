package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

type UserService struct {
	userRepo UserRepository
	logger   *zap.Logger
}

func NewUserService(userRepo UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *UserService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	now := time.Now().UTC()
	user := &domain.User{
		UserID:    uuid.NewString(),
		Name:      req.Name,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, domain.Storage("create user", err)
	}

	s.logger.Info("User created", zap.String("user_id", user.UserID))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetUser(ctx, userID)
	if err != nil {
		return nil, domain.Storage("get user", err)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, page domain.Page) (domain.UserPage, error) {
	users, err := s.userRepo.ListUsers(ctx, page.Normalize())
	if err != nil {
		return domain.UserPage{}, domain.Storage("list users", err)
	}
	return users, nil
}

func (s *UserService) UpdateUser(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	if req.Empty() {
		return nil, domain.Validation("nothing to update")
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}

	user, err := s.userRepo.UpdateUser(ctx, userID, req)
	if err != nil {
		return nil, domain.Storage("update user", err)
	}
	return user, nil
}

// DeleteUser fails with domain.ErrUserHasOrders while orders reference the user.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.userRepo.DeleteUser(ctx, userID); err != nil {
		return domain.Storage("delete user", err)
	}
	s.logger.Info("User deleted", zap.String("user_id", userID))
	return nil
}

package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/auth"
	"github.com/aris-project/aris/internal/models"
)

var (
	ErrUserExists = errors.New("user already exist")
	// ErrBadCredentials deliberately does not distinguish an unknown user
	// from a wrong password.
	ErrBadCredentials = errors.New("user not exist or password incorrect")
)

type Service struct {
	gdb *gorm.DB
}

func NewService(gdb *gorm.DB) *Service {
	return &Service{gdb: gdb}
}

func (s *Service) Register(ctx context.Context, userName, password string) (*models.User, error) {
	var count int64
	err := s.gdb.WithContext(ctx).Model(&models.User{}).Scopes(models.Live).
		Where("user_name = ?", userName).Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{UserName: userName, PasswordHash: hash}
	if err := s.gdb.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies the credentials and stamps last_login_at.
func (s *Service) Login(ctx context.Context, userName, password string) (*models.User, error) {
	var u models.User
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("user_name = ?", userName).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}

	now := time.Now()
	if err := s.gdb.WithContext(ctx).Model(&u).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("stamp login: %w", err)
	}
	return &u, nil
}

// Get returns a live user by id.
func (s *Service) Get(ctx context.Context, uid uint64) (*models.User, error) {
	var u models.User
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("uid = ?", uid).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

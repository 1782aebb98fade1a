package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/models"
)

const maxKeysPerUser = 5

var (
	// ErrTooMany is returned when a user already holds the maximum number
	// of live keys.
	ErrTooMany = errors.New("you can only generate 5 api keys at most")
	// ErrNotFound covers keys that never existed, expired, or belong to
	// someone else.
	ErrNotFound = errors.New("api key not found")
)

type Service struct {
	gdb *gorm.DB
	ttl time.Duration
}

// NewService builds the key manager. ttl is how long issued keys stay
// valid; zero means keys never expire.
func NewService(gdb *gorm.DB, ttl time.Duration) *Service {
	return &Service{gdb: gdb, ttl: ttl}
}

// Generate issues a fresh secret for the user, enforcing the per-user cap
// against live keys only.
func (s *Service) Generate(ctx context.Context, uid uint64) (*models.ApiKey, error) {
	var count int64
	err := s.gdb.WithContext(ctx).Model(&models.ApiKey{}).Scopes(models.Live).
		Where("uid = ?", uid).Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	if count >= maxKeysPerUser {
		return nil, ErrTooMany
	}

	key := &models.ApiKey{
		UID:    uid,
		Secret: "sk-" + uuid.NewString(),
	}
	if s.ttl > 0 {
		expire := time.Now().Add(s.ttl)
		key.DeleteAt = &expire
	}

	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(key).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("uid = ?", uid).
			Update("ak_num", gorm.Expr("ak_num + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create key: %w", err)
	}
	return key, nil
}

// List returns the caller's live keys, oldest first.
func (s *Service) List(ctx context.Context, uid uint64) ([]models.ApiKey, error) {
	var keys []models.ApiKey
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("uid = ?", uid).Order("ak_id ASC").Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Revoke expires a key immediately. Admins may revoke any key; everyone
// else only their own.
func (s *Service) Revoke(ctx context.Context, uid uint64, isAdmin bool, akID uint64) error {
	q := s.gdb.WithContext(ctx).Scopes(models.Live).Where("ak_id = ?", akID)
	if !isAdmin {
		q = q.Where("uid = ?", uid)
	}
	var key models.ApiKey
	err := q.First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	now := time.Now()
	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&key).Update("delete_at", now).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("uid = ? AND ak_num > 0", key.UID).
			Update("ak_num", gorm.Expr("ak_num - 1")).Error
	})
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	return nil
}

// Authenticate resolves a presented secret to its live owner.
func (s *Service) Authenticate(ctx context.Context, secret string) (*models.User, error) {
	var key models.ApiKey
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("api_key_secret = ?", secret).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}

	var user models.User
	err = s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("uid = ?", key.UID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load key owner: %w", err)
	}
	return &user, nil
}

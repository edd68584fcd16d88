package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/h-d3ez/nemesis/internal/models"
	"github.com/h-d3ez/nemesis/internal/password"
)

var (
	// ErrInvalidEmail はメールアドレスの形式が不正な場合に返されます。
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword はパスワードが短すぎる場合に返されます。
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrInvalidRole は未定義のロールが指定された場合に返されます。
	ErrInvalidRole = errors.New("invalid role")
)

// Service は登録とプロフィール更新の業務ルールをまとめます。
type Service struct {
	repo   Repository
	hasher *password.Hasher
}

// NewService は Service を作成します。
func NewService(repo Repository, hasher *password.Hasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// RegisterInput は登録時の入力です。Role が空なら reader になります。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// Register は新しい利用者を作成します。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !password.Acceptable(in.Password) {
		return nil, ErrWeakPassword
	}
	role := in.Role
	if role == "" {
		role = models.RoleReader
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile は表示名と自己紹介を更新し、最新のレコードを返します。
func (s *Service) UpdateProfile(ctx context.Context, id uint, name, bio string) (*models.User, error) {
	if _, err := s.repo.FindActiveByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, id, strings.TrimSpace(name), strings.TrimSpace(bio)); err != nil {
		return nil, err
	}
	return s.repo.FindActiveByID(ctx, id)
}

// Deactivate は利用者を無効化します。レコードは削除しません。
func (s *Service) Deactivate(ctx context.Context, id uint) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, false)
}

// ValidEmail はメールアドレスとして解釈できるかを返します（表示名付きの形式は拒否します）。
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

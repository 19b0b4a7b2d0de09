package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Identity 是本地账号提供方，密码以 bcrypt 哈希保存在 users 表。
type Identity struct {
	db   *gorm.DB
	cost int
}

var _ gateway.Identity = (*Identity)(nil)

// Identity 返回绑定到同一数据库的账号提供方。
func (s *Store) Identity() *Identity {
	return &Identity{db: s.db, cost: bcrypt.DefaultCost}
}

// SignUp 创建账号。
func (i *Identity) SignUp(ctx context.Context, email, password string) (gateway.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var existing model.User
	err := i.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return gateway.Account{}, gateway.ErrAccountExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return gateway.Account{}, fmt.Errorf("query user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cost)
	if err != nil {
		return gateway.Account{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := i.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return gateway.Account{}, gateway.ErrAccountExists
		}
		return gateway.Account{}, fmt.Errorf("create user: %w", err)
	}
	return gateway.Account{ID: user.ID, Email: user.Email}, nil
}

// SignIn 校验邮箱与密码。
func (i *Identity) SignIn(ctx context.Context, email, password string) (gateway.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var user model.User
	if err := i.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gateway.Account{}, gateway.ErrInvalidCredentials
		}
		return gateway.Account{}, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return gateway.Account{}, gateway.ErrInvalidCredentials
	}
	return gateway.Account{ID: user.ID, Email: user.Email}, nil
}

package model

import "time"

// User 表示本地身份提供方（SQL 后端）保存的账号。托管平台模式下账号由平台管理。
type User struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(191);uniqueIndex" json:"email"` // 邮箱（唯一）
	PasswordHash string    `gorm:"not null" json:"-"`                          // bcrypt 哈希
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return TableUsers }

// UserProfile 用户资料，ID 与账号 ID 相同。
type UserProfile struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string { return TableUserProfiles }

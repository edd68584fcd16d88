// Package models は永続化されるテーブルの GORM モデルを定義します。
package models

import "time"

// Role は利用者の権限種別です。
type Role string

const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleEditor Role = "editor"
)

// Valid は定義済みのロールかどうかを返します。
func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleAuthor, RoleEditor:
		return true
	default:
		return false
	}
}

// User はサイトの利用者です。物理削除はせず IsActive で無効化します。
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"column:password;size:255;not null"`
	Role         Role       `json:"role" gorm:"size:20;not null;default:'reader'"`
	Bio          string     `json:"bio,omitempty" gorm:"type:text"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Setting はキーと値の組で保存される設定値です。
type Setting struct {
	ID          uint    `json:"-" gorm:"primaryKey"`
	Key         string  `json:"key" gorm:"column:setting_key;uniqueIndex;size:100;not null"`
	Value       string  `json:"value" gorm:"column:setting_value;type:text"`
	Description *string `json:"description,omitempty" gorm:"size:255"`
}

// ActivityLog は利用者の操作履歴 1 件です。
type ActivityLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index"`
	Action    string    `json:"action" gorm:"size:100;not null"`
	Details   string    `json:"details,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName は既存スキーマのテーブル名に合わせます。
func (ActivityLog) TableName() string { return "activity_log" }

// UserSession はログインごとの接続記録です（監査と失効管理用）。
type UserSession struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	SessionToken string    `json:"-" gorm:"size:64;uniqueIndex;not null"`
	IPAddress    string    `json:"ip_address" gorm:"size:45"`
	UserAgent    string    `json:"user_agent" gorm:"size:255"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

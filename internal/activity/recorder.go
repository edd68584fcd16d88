// Package activity は操作履歴と接続記録の書き込みを提供します。
//
// RecordActivity（activity_log への操作記録）と RecordSession（user_sessions への
// 接続記録）は別の操作です。どちらも失敗してもリクエスト自体は続行できるよう、
// エラーはログに残して呼び出し側へ返します。
package activity

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/h-d3ez/nemesis/internal/models"
)

// SessionTTL は接続記録の有効期間です。
const SessionTTL = time.Hour

// Recorder は履歴テーブルへの書き込みを行います。
type Recorder struct {
	db  *gorm.DB
	l   *zap.Logger
	now func() time.Time
}

// NewRecorder は Recorder を作成します。
func NewRecorder(db *gorm.DB, l *zap.Logger) *Recorder {
	if l == nil {
		l = zap.NewNop()
	}
	return &Recorder{db: db, l: l, now: time.Now}
}

// RecordActivity は利用者の操作を 1 件記録します。
func (r *Recorder) RecordActivity(ctx context.Context, userID uint, action, details string) error {
	entry := &models.ActivityLog{
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.l.Error("failed to log activity",
			zap.Uint("user_id", userID),
			zap.String("action", action),
			zap.Error(err),
		)
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SessionInfo は接続記録に残すクライアント情報です。
type SessionInfo struct {
	Token     string // 空ならランダムに生成する
	IPAddress string
	UserAgent string
}

// RecordSession はログインした接続を 1 時間有効な記録として残し、記録を返します。
func (r *Recorder) RecordSession(ctx context.Context, userID uint, info SessionInfo) (*models.UserSession, error) {
	token := info.Token
	if token == "" {
		token = uuid.NewString()
	}
	now := r.now().UTC()
	row := &models.UserSession{
		UserID:       userID,
		SessionToken: token,
		IPAddress:    truncate(info.IPAddress, 45),
		UserAgent:    truncate(info.UserAgent, 255),
		ExpiresAt:    now.Add(SessionTTL),
		CreatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.l.Error("failed to record session",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("db error: %w", err)
	}
	return row, nil
}

// PurgeExpiredSessions は期限切れの接続記録を削除し、削除件数を返します。
func (r *Recorder) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", r.now().UTC()).
		Delete(&models.UserSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("db error: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Query は操作履歴一覧のベースクエリを返します（新しい順）。
func (r *Recorder) Query(ctx context.Context, userID uint) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ActivityLog{}).Order("created_at DESC").Order("id DESC")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	return q
}

// truncate は s を最大 n 文字に切り詰めます。列の長さは文字数なので
// ルーン単位で数え、マルチバイト文字の途中では切りません。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

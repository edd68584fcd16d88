// Package auth はセッションによる認証、CSRF 対策、ロールによる認可を提供します。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/activity"
	"github.com/h-d3ez/nemesis/internal/models"
	"github.com/h-d3ez/nemesis/internal/password"
	"github.com/h-d3ez/nemesis/internal/users"
)

const (
	SessionCookieName    = "nemesis_session"
	sessionKeyUserID     = "user_id"
	sessionKeyUserName   = "user_name"
	sessionKeyUserRole   = "user_role"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

var (
	// ErrSessionExpired は発行から maxSessionLifetime を超えたセッションです。
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionIdle は最終操作から idleTimeout を超えたセッションです。
	ErrSessionIdle = errors.New("session idle timeout")
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// Manager はログイン状態と CSRF トークンをセッション上で管理します。
type Manager struct {
	users    users.Repository
	hasher   *password.Hasher
	activity *activity.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager は認証マネージャーを作成します。activity は nil でも構いません。
func NewManager(repo users.Repository, hasher *password.Hasher, rec *activity.Recorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		users:    repo,
		hasher:   hasher,
		activity: rec,
		logger:   logger,
		now:      time.Now,
	}
}

// Login は有効な利用者のメールアドレスとパスワードを照合します。
//
// 該当者がいない場合もパスワードが違う場合も同じく false を返し、どちらで
// 失敗したかは区別しません。成功するとユーザー ID・名前・ロールと新しい
// CSRF トークンをまとめてセッションに保存し、最終ログイン日時を更新します。
func (m *Manager) Login(ctx context.Context, session sessions.Session, email, plain string) (bool, error) {
	user, err := m.users.FindActiveByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, users.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !m.hasher.Verify(plain, user.PasswordHash) {
		return false, nil
	}

	token, err := generateToken()
	if err != nil {
		return false, fmt.Errorf("generate csrf token: %w", err)
	}

	now := m.now()
	// セッションへ書き込む前に更新する。失敗時にログイン済みの状態を残さない
	if err := m.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return false, err
	}

	// 以前の状態を引き継がない
	session.Clear()
	session.Set(sessionKeyUserID, user.ID)
	session.Set(sessionKeyUserName, user.Name)
	session.Set(sessionKeyUserRole, string(user.Role))
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return false, fmt.Errorf("save session: %w", err)
	}

	if m.activity != nil {
		_ = m.activity.RecordActivity(ctx, user.ID, "login", "User logged in")
	}
	return true, nil
}

// Logout はセッションの内容をすべて消去します。未ログインでも成功します。
func (m *Manager) Logout(session sessions.Session) error {
	session.Clear()
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// IsLoggedIn はセッションにユーザー ID があるかだけを判定します。
func (m *Manager) IsLoggedIn(session sessions.Session) bool {
	_, ok := UserID(session)
	return ok
}

// UserID はセッションのユーザー ID を返します。
func UserID(session sessions.Session) (uint, bool) {
	id := readUint(session.Get(sessionKeyUserID))
	return id, id != 0
}

// CurrentUser はセッションのユーザーを毎回ストアから読み直して返します。
// 未ログイン、または無効化されたアカウントの場合は nil を返します。
func (m *Manager) CurrentUser(ctx context.Context, session sessions.Session) (*models.User, error) {
	id, ok := UserID(session)
	if !ok {
		return nil, nil
	}
	user, err := m.users.FindActiveByID(ctx, id)
	if errors.Is(err, users.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// checkLifetime は発行日時と最終操作日時からセッションの有効性を判定します。
func (m *Manager) checkLifetime(session sessions.Session) error {
	now := m.now()
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))

	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
		return ErrSessionExpired
	}
	if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		return ErrSessionIdle
	}
	return nil
}

// IssueToken はセッションの CSRF トークンを返します。未発行なら生成して保存します。
func (m *Manager) IssueToken(session sessions.Session) (string, error) {
	if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

// VerifyToken は candidate が発行済みトークンと一致するかを定数時間で比較します。
// トークン未発行または candidate が空の場合は false です。
func (m *Manager) VerifyToken(session sessions.Session, candidate string) bool {
	expected, ok := session.Get(sessionKeyCSRF).(string)
	if !ok || expected == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func readUint(v interface{}) uint {
	switch t := v.(type) {
	case uint:
		return t
	case uint64:
		return uint(t)
	case int:
		if t > 0 {
			return uint(t)
		}
	case int64:
		if t > 0 {
			return uint(t)
		}
	case float64:
		if t > 0 {
			return uint(t)
		}
	}
	return 0
}

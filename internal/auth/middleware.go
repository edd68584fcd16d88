package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/h-d3ez/nemesis/internal/httpx"
	"github.com/h-d3ez/nemesis/internal/models"
)

// ContextUserKey は RequireLogin が読み込んだ *models.User を共有するためのキーです。
const ContextUserKey = "auth.user"

// RequireLogin はセッションを検証し、ログイン中のユーザーをコンテキストに載せるミドルウェアです。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if !m.IsLoggedIn(session) {
			httpx.Abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		if err := m.checkLifetime(session); err != nil {
			_ = m.Logout(session)
			msg := "Session expired"
			if errors.Is(err, ErrSessionIdle) {
				msg = "Session timed out due to inactivity"
			}
			httpx.Abort(c, http.StatusUnauthorized, msg)
			return
		}

		user, err := m.CurrentUser(c.Request.Context(), session)
		if err != nil {
			httpx.Internal(c, m.logger, "load current user failed", err)
			c.Abort()
			return
		}
		if user == nil {
			// 無効化されたアカウント
			_ = m.Logout(session)
			httpx.Abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		session.Set(sessionKeyLastActive, m.now().Unix())
		// ロール変更をセッションにも反映する
		session.Set(sessionKeyUserRole, string(user.Role))
		if err := session.Save(); err != nil {
			m.logger.Warn("failed to refresh session")
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// VerifyCSRF は状態を変更するリクエストの X-CSRF-Token ヘッダー
// （またはフォームの csrf_token）を検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		candidate := c.GetHeader(csrfHeader)
		if candidate == "" {
			candidate = c.PostForm(csrfFormField)
		}
		if !m.VerifyToken(sessions.Default(c), candidate) {
			httpx.Abort(c, http.StatusForbidden, "Invalid CSRF token")
			return
		}
		c.Next()
	}
}

// RequireRole は指定したロールのいずれかを持つ利用者だけを通します。
// RequireLogin の後に置きます。
func (m *Manager) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserFromContext(c)
		if user == nil {
			var err error
			user, err = m.CurrentUser(c.Request.Context(), sessions.Default(c))
			if err != nil {
				httpx.Internal(c, m.logger, "load current user failed", err)
				c.Abort()
				return
			}
		}
		if user == nil {
			httpx.Abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !HasRole(user, roles...) {
			httpx.Abort(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// UserFromContext は RequireLogin が載せたユーザーを返します。
func UserFromContext(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// HasRole は user が roles のいずれかを持つかを返します。
func HasRole(user *models.User, roles ...models.Role) bool {
	if user == nil {
		return false
	}
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin は編集者かどうかを返します。
func IsAdmin(user *models.User) bool {
	return HasRole(user, models.RoleEditor)
}

// IsAuthor は author ロールかどうかを返します。editor は含みません。
func IsAuthor(user *models.User) bool {
	return HasRole(user, models.RoleAuthor)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

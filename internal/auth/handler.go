package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/activity"
	"github.com/h-d3ez/nemesis/internal/httpx"
	"github.com/h-d3ez/nemesis/internal/models"
	"github.com/h-d3ez/nemesis/internal/users"
)

// Handler は /api/auth/* と /api/me のハンドラーをまとめます。
type Handler struct {
	auth     *Manager
	users    *users.Service
	activity *activity.Recorder
	logger   *zap.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(m *Manager, svc *users.Service, rec *activity.Recorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: m, users: svc, activity: rec, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=reader author"`
}

// Register は POST /api/auth/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.ValidationFailed(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		httpx.Fail(c, http.StatusConflict, "Email already exists")
		return
	case errors.Is(err, users.ErrInvalidEmail),
		errors.Is(err, users.ErrWeakPassword),
		errors.Is(err, users.ErrInvalidRole):
		httpx.Fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		httpx.Internal(c, h.logger, "register failed", err)
		return
	}

	h.record(c, user.ID, "register", "User registered")
	httpx.OK(c, http.StatusCreated, "Registration successful", user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	User      *models.User `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

// Login は POST /api/auth/login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.ValidationFailed(c, err)
		return
	}

	ctx := c.Request.Context()
	session := sessions.Default(c)
	ok, err := h.auth.Login(ctx, session, req.Email, req.Password)
	if err != nil {
		httpx.Internal(c, h.logger, "login failed", err)
		return
	}
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	user, err := h.auth.CurrentUser(ctx, session)
	if err != nil || user == nil {
		httpx.Internal(c, h.logger, "load user after login failed", err)
		return
	}
	token, err := h.auth.IssueToken(session)
	if err != nil {
		httpx.Internal(c, h.logger, "issue csrf token failed", err)
		return
	}

	if h.activity != nil {
		if _, err := h.activity.RecordSession(ctx, user.ID, activity.SessionInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}); err != nil {
			h.logger.Warn("failed to record user session", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	c.Header(csrfHeader, token)
	httpx.OK(c, http.StatusOK, "Login successful", loginResponse{User: user, CSRFToken: token})
}

// Logout は POST /api/auth/logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if id, ok := UserID(session); ok {
		h.record(c, id, "logout", "User logged out")
	}
	if err := h.auth.Logout(session); err != nil {
		httpx.Internal(c, h.logger, "logout failed", err)
		return
	}
	httpx.OK(c, http.StatusOK, "Logged out", nil)
}

// CSRF は GET /api/auth/csrf のハンドラーです。
func (h *Handler) CSRF(c *gin.Context) {
	token, err := h.auth.IssueToken(sessions.Default(c))
	if err != nil {
		httpx.Internal(c, h.logger, "issue csrf token failed", err)
		return
	}
	c.Header(csrfHeader, token)
	httpx.OK(c, http.StatusOK, "CSRF token issued", gin.H{"csrf_token": token})
}

// Me は GET /api/me のハンドラーです。RequireLogin の後に置きます。
func (h *Handler) Me(c *gin.Context) {
	user := UserFromContext(c)
	if user == nil {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	httpx.OK(c, http.StatusOK, "OK", user)
}

type profileRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	Bio  string `json:"bio" binding:"max=1000"`
}

// UpdateMe は PATCH /api/me のハンドラーです。
func (h *Handler) UpdateMe(c *gin.Context) {
	current := UserFromContext(c)
	if current == nil {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.ValidationFailed(c, err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), current.ID, req.Name, req.Bio)
	if err != nil {
		httpx.Internal(c, h.logger, "update profile failed", err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyUserName, user.Name)
	if err := session.Save(); err != nil {
		h.logger.Warn("failed to refresh session name", zap.Error(err))
	}

	h.record(c, user.ID, "profile_update", "Profile updated")
	httpx.OK(c, http.StatusOK, "Profile updated", user)
}

// record はアクティビティを残します。失敗してもリクエストは成功させます。
func (h *Handler) record(c *gin.Context, userID uint, action, details string) {
	if h.activity == nil {
		return
	}
	_ = h.activity.RecordActivity(c.Request.Context(), userID, action, details)
}

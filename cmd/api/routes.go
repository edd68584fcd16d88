package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/h-d3ez/nemesis/internal/auth"
	"github.com/h-d3ez/nemesis/internal/httpx"
	"github.com/h-d3ez/nemesis/internal/models"
	"github.com/h-d3ez/nemesis/internal/pagination"
	"github.com/h-d3ez/nemesis/internal/ratelimit"
	"github.com/h-d3ez/nemesis/internal/upload"
	"github.com/h-d3ez/nemesis/internal/users"
)

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "nemesis-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, a *app) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := a.auth
	apiLimit := ratelimit.Middleware(a.limiter, ratelimit.Rule{
		Scope:       "api",
		MaxRequests: a.cfg.APIRateLimit,
		Window:      a.cfg.APIRateWindow,
	}, nil, a.logger)
	loginLimit := ratelimit.Middleware(a.limiter, ratelimit.Rule{
		Scope:       "login",
		MaxRequests: a.cfg.LoginRateLimit,
		Window:      a.cfg.LoginRateWindow,
	}, nil, a.logger)

	api := router.Group("/api")
	api.Use(apiLimit)
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン前はセッションがないため CSRF 検証は行わない
			authRoutes.POST("/register", a.authHandler.Register)
			authRoutes.POST("/login", loginLimit, a.authHandler.Login)
			authRoutes.GET("/csrf", a.authHandler.CSRF)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				a.authHandler.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.GET("/me", a.authHandler.Me)
			protected.PATCH("/me", a.authHandler.UpdateMe)
			protected.POST("/uploads", upload.Handler(a.uploads, a.uploadOpts, a.logger, a.recordUpload))
			protected.GET("/settings/:key", a.getSetting)
		}

		editor := protected.Group("")
		editor.Use(authManager.RequireRole(models.RoleEditor))
		{
			editor.PUT("/settings/:key", a.putSetting)
			editor.GET("/users", a.listUsers)
			editor.POST("/users/:id/deactivate", a.deactivateUser)
			editor.GET("/activity", a.listActivity)

			if a.jobs != nil {
				editor.POST("/maintenance/tasks/:task", enqueueMaintenanceHandler(a.jobs, a.logger))
				editor.GET("/maintenance/tasks/:task", lastRunHandler(a.jobs, a.logger))
				editor.GET("/maintenance/jobs/:id", jobStatusHandler(a.jobs, a.logger))
			}
		}
	}
}

func (a *app) recordUpload(c *gin.Context, asset *upload.Asset) {
	if user := auth.UserFromContext(c); user != nil {
		_ = a.activity.RecordActivity(c.Request.Context(), user.ID, "upload", "Uploaded "+asset.StoredName)
	}
}

// listUsers は GET /api/users のハンドラーです。
func (a *app) listUsers(c *gin.Context) {
	var list []models.User
	page, err := pagination.Paginate(c.Request.Context(), a.users.Query(c.Request.Context()), pagination.FromQuery(c), &list)
	if err != nil {
		httpx.Internal(c, a.logger, "list users failed", err)
		return
	}
	httpx.OK(c, http.StatusOK, "OK", page)
}

// deactivateUser は POST /api/users/:id/deactivate のハンドラーです。
func (a *app) deactivateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Fail(c, http.StatusBadRequest, "Invalid user id")
		return
	}
	actor := auth.UserFromContext(c)
	if actor != nil && actor.ID == uint(id) {
		httpx.Fail(c, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}

	err = a.userService.Deactivate(c.Request.Context(), uint(id))
	switch {
	case errors.Is(err, users.ErrNotFound):
		httpx.Fail(c, http.StatusNotFound, "User not found")
		return
	case err != nil:
		httpx.Internal(c, a.logger, "deactivate user failed", err)
		return
	}

	if actor != nil {
		_ = a.activity.RecordActivity(c.Request.Context(), actor.ID, "user_deactivate", fmt.Sprintf("Deactivated user #%d", id))
	}
	httpx.OK(c, http.StatusOK, "User deactivated", nil)
}

// listActivity は GET /api/activity のハンドラーです。?user_id= で絞り込めます。
func (a *app) listActivity(c *gin.Context) {
	var userID uint64
	if raw := c.Query("user_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpx.Fail(c, http.StatusBadRequest, "Invalid user id")
			return
		}
		userID = v
	}

	var list []models.ActivityLog
	page, err := pagination.Paginate(c.Request.Context(), a.activity.Query(c.Request.Context(), uint(userID)), pagination.FromQuery(c), &list)
	if err != nil {
		httpx.Internal(c, a.logger, "list activity failed", err)
		return
	}
	httpx.OK(c, http.StatusOK, "OK", page)
}

// getSetting は GET /api/settings/:key のハンドラーです。
func (a *app) getSetting(c *gin.Context) {
	setting, err := a.settings.Lookup(c.Request.Context(), c.Param("key"))
	if err != nil {
		httpx.Internal(c, a.logger, "get setting failed", err)
		return
	}
	if setting == nil {
		httpx.Fail(c, http.StatusNotFound, "Setting not found")
		return
	}
	httpx.OK(c, http.StatusOK, "OK", setting)
}

type settingRequest struct {
	Value       *string `json:"value" binding:"required"`
	Description *string `json:"description"`
}

// putSetting は PUT /api/settings/:key のハンドラーです。
func (a *app) putSetting(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.ValidationFailed(c, err)
		return
	}

	ctx := c.Request.Context()
	key := c.Param("key")
	if err := a.settings.Set(ctx, key, *req.Value, req.Description); err != nil {
		httpx.Internal(c, a.logger, "save setting failed", err)
		return
	}
	setting, err := a.settings.Lookup(ctx, key)
	if err != nil {
		httpx.Internal(c, a.logger, "get setting failed", err)
		return
	}

	if actor := auth.UserFromContext(c); actor != nil {
		_ = a.activity.RecordActivity(ctx, actor.ID, "setting_update", "Updated setting "+key)
	}
	httpx.OK(c, http.StatusOK, "Setting saved", setting)
}

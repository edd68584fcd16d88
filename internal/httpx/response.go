// Package httpx は API 全体で共通の JSON レスポンス形式を提供します。
//
// レスポンスは常に {"success": bool, "message": string, ["data": any]} の形をとります。
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Envelope は API レスポンスの共通形式です。
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// OK は成功レスポンスを返します。data が nil の場合は data を省略します。
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Fail は失敗レスポンスを返します。
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Message: message})
}

// Abort はミドルウェアから失敗レスポンスを返して後続を止めます。
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message})
}

// ValidationFailed は入力エラーを 400 で返し、失敗した項目を列挙します。
func ValidationFailed(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  FieldErrors(err),
	})
}

// Internal は基盤エラーをログに残し、詳細を隠した 500 を返します。
func Internal(c *gin.Context, l *zap.Logger, msg string, err error) {
	if l != nil {
		l.Error(msg,
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, Envelope{Success: false, Message: "Internal server error"})
}

// FieldErrors はバインドエラーを利用者向けのメッセージ一覧に変換します。
func FieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err == nil {
			return nil
		}
		return []string{"Request body is malformed"}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required", field))
		case "email":
			out = append(out, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			out = append(out, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			out = append(out, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid", field))
		}
	}
	return out
}

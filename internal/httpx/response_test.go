package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type registerForm struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func TestValidationFailedListsFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"nope","password":"123"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var form registerForm
	err := c.ShouldBindJSON(&form)
	require.Error(t, err)
	ValidationFailed(c, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.ElementsMatch(t, []string{
		"name is required",
		"email must be a valid email address",
		"password must be at least 6 characters",
	}, body.Errors)
}

func TestFieldErrorsMalformed(t *testing.T) {
	assert.Equal(t, []string{"Request body is malformed"}, FieldErrors(errors.New("unexpected EOF")))
	assert.Nil(t, FieldErrors(nil))
}

func TestOKOmitsNilData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	OK(c, http.StatusOK, "Logged out", nil)

	assert.JSONEq(t, `{"success":true,"message":"Logged out"}`, rec.Body.String())
}

func TestInternalHidesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/me", nil)

	Internal(c, zap.New(core), "load user", errors.New("dial tcp 10.0.0.1:3306: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "load user", logs.All()[0].Message)
}

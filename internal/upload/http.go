package upload

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/httpx"
)

// FormField は POST /api/uploads でファイルを受け取るフィールド名です。
const FormField = "file"

// StoredHook は保存成功後に呼ばれます（アクティビティ記録など）。
type StoredHook func(c *gin.Context, asset *Asset)

// Handler は POST /api/uploads のハンドラーを返します。
func Handler(v *Validator, opts Options, logger *zap.Logger, onStored StoredHook) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		fh, err := c.FormFile(FormField)
		if err != nil {
			httpx.Fail(c, http.StatusBadRequest, defaultMessages[ReasonUploadError])
			return
		}

		asset, err := v.ValidateAndStore(c.Request.Context(), FromMultipart(fh), opts)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		if onStored != nil {
			onStored(c, asset)
		}
		httpx.OK(c, http.StatusCreated, "File uploaded", asset)
	}
}

func respondWithError(c *gin.Context, logger *zap.Logger, err error) {
	var upErr *Error
	if !errors.As(err, &upErr) {
		httpx.Internal(c, logger, "upload failed", err)
		return
	}

	switch upErr.Reason {
	case ReasonTypeRejected:
		httpx.Fail(c, http.StatusUnsupportedMediaType, upErr.Message)
	case ReasonSizeExceeded:
		httpx.Fail(c, http.StatusRequestEntityTooLarge, upErr.Message)
	case ReasonStorageFailure:
		httpx.Internal(c, logger, "upload storage failed", err)
	default:
		httpx.Fail(c, http.StatusBadRequest, upErr.Message)
	}
}

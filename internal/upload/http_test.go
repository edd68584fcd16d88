package upload

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/h-d3ez/nemesis/internal/storage"
)

func multipartRequest(t *testing.T, field, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newUploadRouter(t *testing.T, opts Options, hook StoredHook) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v := NewValidator(storage.NewLocal(t.TempDir()))
	router.POST("/api/uploads", Handler(v, opts, nil, hook))
	return router
}

func TestUploadHandlerCreated(t *testing.T) {
	var stored *Asset
	router := newUploadRouter(t, imageOptions(), func(c *gin.Context, a *Asset) { stored = a })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, FormField, "cat.png", "image/png", pngHeader))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool  `json:"success"`
		Data    Asset `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data.OriginalName != "cat.png" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if stored == nil || stored.StoredName != resp.Data.StoredName {
		t.Fatalf("hook not called with stored asset: %+v", stored)
	}
}

func TestUploadHandlerStatusCodes(t *testing.T) {
	opts := imageOptions()
	opts.MaxSize = 8

	tests := []struct {
		name        string
		field       string
		contentType string
		body        []byte
		want        int
	}{
		{name: "type rejected", field: FormField, contentType: "text/html", body: []byte("<p>"), want: http.StatusUnsupportedMediaType},
		{name: "too large", field: FormField, contentType: "image/png", body: pngHeader, want: http.StatusRequestEntityTooLarge},
		{name: "missing field", field: "other", contentType: "image/png", body: pngHeader, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newUploadRouter(t, opts, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.field, "x.bin", tt.contentType, tt.body))
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d body=%s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

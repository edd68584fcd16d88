package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)

	p, err := store.Save(context.Background(), "uploads/avatars", "a.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "uploads", "avatars", "a.png"), p)

	info, err := os.Stat(filepath.Join(root, "uploads", "avatars"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestLocalSaveDoesNotOverwrite(t *testing.T) {
	store := NewLocal(t.TempDir())
	_, err := store.Save(context.Background(), "u", "a.txt", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "u", "a.txt", strings.NewReader("second"))
	assert.ErrorIs(t, err, ErrExists)
}

func TestLocalSaveStripsPathFromName(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root).Save(context.Background(), "u", "../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "u", "escape.txt"), p)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalSaveRemovesPartialFile(t *testing.T) {
	root := t.TempDir()
	_, err := NewLocal(root).Save(context.Background(), "u", "a.bin", failingReader{})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "u", "a.bin"))
}

type stubUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (s *stubUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	s.input = in
	data, _ := io.ReadAll(in.Body)
	s.body = string(data)
	if s.err != nil {
		return nil, s.err
	}
	return &manager.UploadOutput{}, nil
}

func TestS3Save(t *testing.T) {
	stub := &stubUploader{}
	store := &S3{client: stub, bucket: "nemesis"}

	p, err := store.Save(context.Background(), "uploads", "x_a.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, "s3://nemesis/uploads/x_a.png", p)
	assert.Equal(t, "nemesis", aws.ToString(stub.input.Bucket))
	assert.Equal(t, "uploads/x_a.png", aws.ToString(stub.input.Key))
	assert.Equal(t, "img", stub.body)
}

func TestS3SaveWrapsError(t *testing.T) {
	boom := errors.New("access denied")
	store := &S3{client: &stubUploader{err: boom}, bucket: "nemesis"}

	_, err := store.Save(context.Background(), "uploads", "a.png", strings.NewReader("img"))
	assert.ErrorIs(t, err, boom)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Options{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3UsesStaticCredentials(t *testing.T) {
	s, err := NewS3(context.Background(), S3Options{
		Bucket:    "nemesis",
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "nemesis", s.bucket)
}

// 長さ不明でシークできない本体でも、実際の SDK 経由で PUT が届くことを確認する
func TestS3SaveStreamsUnseekableBody(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3(context.Background(), S3Options{
		Bucket:    "nemesis",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	r := io.MultiReader(strings.NewReader("\x89PNG"), strings.NewReader("-rest"))
	p, err := store.Save(context.Background(), "uploads", "x.png", io.LimitReader(r, 1<<20))
	require.NoError(t, err)
	assert.Equal(t, "s3://nemesis/uploads/x.png", p)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/nemesis/uploads/x.png", path)
	assert.Equal(t, "\x89PNG-rest", body)
}

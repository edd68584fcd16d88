package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options は S3 互換ストレージへの接続設定です。
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO などを使う場合のみ
	AccessKey string
	SecretKey string
}

// objectUploader は manager.Uploader のうち Save が使う部分です。
// アップロード本体は長さ不明でシークもできないため、PutObject を直接呼ばず
// パートごとにバッファリングする Uploader に任せます。
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 はオブジェクトストレージに保存します。
type S3 struct {
	client objectUploader
	bucket string
}

// NewS3 は設定から S3 クライアントを組み立てます。
// アクセスキーが空の場合は SDK の既定の認証情報チェーンを使います。
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: manager.NewUploader(client), bucket: opts.Bucket}, nil
}

// Save は dir/name をキーとしてオブジェクトを書き込み、s3:// 形式のパスを返します。
func (s *S3) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	key := path.Join(dir, path.Base(name))
	_, err := s.client.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Package upload はアップロードされたファイルを検証し、一意な名前で保存します。
package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/h-d3ez/nemesis/internal/storage"
)

// sniffLen は内容判定のために先読みするバイト数です。
const sniffLen = 3072

// Descriptor はクライアントから受け取った 1 ファイル分の情報です。
// ContentType と Size はクライアントの申告値です。
type Descriptor struct {
	Filename    string
	ContentType string
	Size        int64
	Err         error
	Open        func() (io.ReadCloser, error)
}

// FromMultipart は multipart のファイルヘッダーから Descriptor を作ります。
func FromMultipart(fh *multipart.FileHeader) Descriptor {
	if fh == nil {
		return Descriptor{Err: errors.New("no file")}
	}
	return Descriptor{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Options は検証条件と保存先です。
type Options struct {
	AllowedTypes  []string // 空なら種類を問わない
	MaxSize       int64    // 0 なら無制限
	Directory     string
	VerifyContent bool // true なら内容から判定した種類も許可リストと照合する
}

// Asset は保存済みファイルの情報です。
type Asset struct {
	OriginalName string `json:"original_name"`
	MIMEType     string `json:"mime_type"`
	DetectedType string `json:"detected_type"`
	Size         int64  `json:"size"`
	StoredName   string `json:"stored_name"`
	Path         string `json:"path"`
}

// Validator は検証を通過したファイルを Storage に書き込みます。
type Validator struct {
	store   storage.Storage
	newName func() string
}

// NewValidator は Validator を作成します。
func NewValidator(store storage.Storage) *Validator {
	return &Validator{store: store, newName: uuid.NewString}
}

var errTooLarge = errors.New("upload exceeds size limit")

// ValidateAndStore は d を検証し、問題がなければ保存します。
//
// アップロード自体のエラー、許可リスト外の申告 MIME タイプ、上限を超える申告サイズの
// いずれかに該当する場合は何も書き込まずに *Error を返します。申告より実際の内容が
// 大きかった場合も SizeExceeded とし、書きかけのファイルは残しません。
func (v *Validator) ValidateAndStore(ctx context.Context, d Descriptor, opts Options) (*Asset, error) {
	if d.Err != nil || d.Open == nil {
		return nil, newError(ReasonUploadError, d.Err)
	}

	declared := normalizeType(d.ContentType)
	if !typeAllowed(declared, opts.AllowedTypes) {
		return nil, newError(ReasonTypeRejected, nil)
	}
	if opts.MaxSize > 0 && d.Size > opts.MaxSize {
		return nil, newError(ReasonSizeExceeded, nil)
	}

	f, err := d.Open()
	if err != nil {
		return nil, newError(ReasonUploadError, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, newError(ReasonUploadError, err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if opts.VerifyContent && !detectedAllowed(detected, opts.AllowedTypes) {
		return nil, newError(ReasonTypeRejected, nil)
	}

	var body io.Reader = io.MultiReader(bytes.NewReader(head), f)
	if opts.MaxSize > 0 {
		body = &limitedReader{r: body, remaining: opts.MaxSize}
	}

	storedName := v.newName() + "_" + CleanFilename(d.Filename)
	path, err := v.store.Save(ctx, opts.Directory, storedName, body)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, newError(ReasonSizeExceeded, nil)
		}
		return nil, newError(ReasonStorageFailure, err)
	}

	return &Asset{
		OriginalName: d.Filename,
		MIMEType:     declared,
		DetectedType: detected.String(),
		Size:         d.Size,
		StoredName:   storedName,
		Path:         path,
	}, nil
}

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	repeatedUnders  = regexp.MustCompile(`_+`)
)

// CleanFilename は英数字と . _ - 以外を _ に置き換え、連続する _ をまとめ、
// 前後の _ を取り除きます。結果が空になる場合は "file" を返します。
func CleanFilename(name string) string {
	clean := unsafeNameChars.ReplaceAllString(name, "_")
	clean = repeatedUnders.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_")
	if clean == "" || strings.Trim(clean, ".") == "" {
		return "file"
	}
	return clean
}

func normalizeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func typeAllowed(mediaType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return true
		}
	}
	return false
}

func detectedAllowed(detected *mimetype.MIME, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if detected.Is(a) {
			return true
		}
	}
	return false
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

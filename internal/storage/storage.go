// Package storage はアップロードされたファイルの保存先を抽象化します。
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrExists は同名のオブジェクトが既に存在する場合に返されます。
var ErrExists = errors.New("storage: object already exists")

// Storage は dir 配下に name という名前で r の内容を書き込み、保存先のパスを返します。
type Storage interface {
	Save(ctx context.Context, dir, name string, r io.Reader) (string, error)
}

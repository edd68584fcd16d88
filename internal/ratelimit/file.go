package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const filePrefix = "rate_limit_"

// FileStore はキーごとに 1 ファイルの JSON でカウンタを保存します。
//
// 読み込みから書き込みまでロックを取らないため、同じキーへの同時リクエストでは
// 更新が失われ、拒否すべきリクエストを許可することがあります。厳密さが必要なら
// RedisStore を使ってください。
type FileStore struct {
	dir string
}

// NewFileStore は dir 配下に保存する FileStore を返します。
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Apply はファイルを読み、step の結果を書き戻します。
func (s *FileStore) Apply(ctx context.Context, key string, step func(current *Record) *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(key)
	current, err := readRecord(path)
	if err != nil {
		return err
	}

	next := step(current)
	if next == nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create rate limit dir: %w", err)
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write rate limit record: %w", err)
	}
	return nil
}

// PurgeStale は最終更新から maxAge 以上経ったレコードファイルを削除し、件数を返します。
func (s *FileStore) PurgeStale(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filePrefix+key+".json")
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rate limit record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// 壊れたファイルは未登録として扱い、新しいウィンドウで上書きする
		return nil, nil
	}
	return &rec, nil
}

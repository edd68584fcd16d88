// Package ratelimit はキーごとの固定ウィンドウ方式のレート制限を提供します。
//
// ウィンドウ開始から window 以上経過した時点でカウンタを 1 に戻す方式で、
// 連続的にずれていくスライディングウィンドウではありません。境界をまたぐ
// バーストは許容されます。
package ratelimit

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Record は永続化されるカウンタです。Timestamp はウィンドウ開始の UNIX 秒です。
type Record struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"`
}

// Decision は 1 回の判定結果です。
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter は次のウィンドウまでの待ち時間を返します。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Store はキーごとのレコードを読み書きします。
//
// Apply は現在のレコード（未登録なら nil）を step に渡し、step が返した
// レコードを保存します。step が nil を返した場合は書き込みません。
type Store interface {
	Apply(ctx context.Context, key string, step func(current *Record) (next *Record)) error
}

// Limiter は Store を使って判定を行います。
type Limiter struct {
	store Store
	now   func() time.Time
}

// New は Limiter を作成します。
func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

var errInvalidLimit = errors.New("ratelimit: maxRequests and window must be positive")

// Allow は key のリクエストを 1 回消費できるかを判定します。
//
// レコードがない、またはウィンドウ開始から window 以上経過していれば
// count=1 で新しいウィンドウを開始して許可します。それ以外は count が
// maxRequests 未満なら加算して許可し、上限に達していれば加算せずに拒否します。
func (l *Limiter) Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (Decision, error) {
	if maxRequests <= 0 || window <= 0 {
		return Decision{}, errInvalidLimit
	}

	now := l.now()
	var decision Decision
	err := l.store.Apply(ctx, SanitizeKey(key), func(current *Record) *Record {
		next, d := decide(current, now, maxRequests, window)
		decision = d
		return next
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func decide(current *Record, now time.Time, maxRequests int, window time.Duration) (*Record, Decision) {
	nowUnix := now.Unix()
	windowSec := int64(window / time.Second)
	if windowSec < 1 {
		windowSec = 1
	}

	if current == nil || nowUnix-current.Timestamp >= windowSec {
		next := &Record{Count: 1, Timestamp: nowUnix}
		return next, Decision{
			Allowed:   true,
			Limit:     maxRequests,
			Remaining: maxRequests - 1,
			ResetAt:   time.Unix(nowUnix+windowSec, 0),
		}
	}

	resetAt := time.Unix(current.Timestamp+windowSec, 0)
	if current.Count >= maxRequests {
		return nil, Decision{Allowed: false, Limit: maxRequests, Remaining: 0, ResetAt: resetAt}
	}

	next := &Record{Count: current.Count + 1, Timestamp: current.Timestamp}
	return next, Decision{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - next.Count,
		ResetAt:   resetAt,
	}
}

var (
	unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	repeatedUnders = regexp.MustCompile(`_+`)
)

// SanitizeKey はキーをファイル名や Redis キーに使える文字だけに揃えます。
func SanitizeKey(key string) string {
	clean := unsafeKeyChars.ReplaceAllString(key, "_")
	clean = repeatedUnders.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_.")
	if clean == "" {
		return "default"
	}
	return clean
}

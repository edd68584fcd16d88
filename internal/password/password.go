// Package password はパスワードのハッシュ化と照合を提供します。
//
// 新規ハッシュは設定されたアルゴリズムで作成し、照合はハッシュの形式から
// bcrypt / argon2id を自動判別します（旧システムの $2y$ 形式もそのまま扱えます）。
package password

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// MinLength は受け付けるパスワードの最小文字数です。
const MinLength = 6

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Hasher はパスワードのハッシュ化と照合を行います。
type Hasher struct {
	algorithm  string
	bcryptCost int
	argonParam *argon2id.Params
}

// NewHasher は algorithm でハッシュを作る Hasher を返します。
func NewHasher(algorithm string) (*Hasher, error) {
	switch algorithm {
	case "", AlgorithmBcrypt:
		return &Hasher{algorithm: AlgorithmBcrypt, bcryptCost: bcrypt.DefaultCost}, nil
	case AlgorithmArgon2id:
		return &Hasher{algorithm: AlgorithmArgon2id, argonParam: argon2id.DefaultParams}, nil
	default:
		return nil, fmt.Errorf("unsupported password hasher: %s", algorithm)
	}
}

// NewTestHasher はテスト向けに計算コストを下げた bcrypt Hasher を返します。
func NewTestHasher() *Hasher {
	return &Hasher{algorithm: AlgorithmBcrypt, bcryptCost: bcrypt.MinCost}
}

// Hash は平文パスワードをハッシュ化します。
func (h *Hasher) Hash(plain string) (string, error) {
	if h.algorithm == AlgorithmArgon2id {
		hash, err := argon2id.CreateHash(plain, h.argonParam)
		if err != nil {
			return "", fmt.Errorf("argon2id hash: %w", err)
		}
		return hash, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// Verify は平文とハッシュが一致するかを返します。形式不正も不一致として扱います。
func (h *Hasher) Verify(plain, hash string) bool {
	if strings.HasPrefix(hash, "$argon2id$") {
		match, err := argon2id.ComparePasswordAndHash(plain, hash)
		return err == nil && match
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Acceptable はパスワード強度の最低条件を満たすかを返します。
func Acceptable(plain string) bool {
	return len(plain) >= MinLength
}

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken 表示签名错误、格式错误、算法不符、已过期或缺少 sub。
var ErrInvalidToken = errors.New("invalid token")

// reservedClaims 由 TokenService 负责填写，调用方不能通过附加声明覆盖。
var reservedClaims = map[string]bool{
	"sub": true, "iat": true, "exp": true, "jti": true,
	"nbf": true, "iss": true, "aud": true,
}

// Claims 是会话 Token 的载荷。
//
// Email 来自附加声明 "email"；其余附加声明保存在 Extra 中，与标准声明平铺在同一层 JSON。
type Claims struct {
	jwt.RegisteredClaims
	Email string         `json:"email,omitempty"`
	Extra map[string]any `json:"-"`
}

// MarshalJSON 把 Extra 平铺到标准声明旁边。
func (c Claims) MarshalJSON() ([]byte, error) {
	type plain Claims
	base, err := json.Marshal(plain(c))
	if err != nil || len(c.Extra) == 0 {
		return base, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(fields)+len(c.Extra))
	for k, v := range c.Extra {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON 解析标准声明，未识别的键进入 Extra。
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if reservedClaims[k] || k == "email" {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		all = nil
	}
	*c = Claims(p)
	c.Extra = all
	return nil
}

// TokenService 负责签发与校验会话 Token。
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption 配置 TokenService。
type TokenOption func(*TokenService)

// WithClock 替换时间源（测试用）。
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService 创建 TokenService。algorithm 仅支持 HMAC 系列。
func NewTokenService(secret, algorithm string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	var method jwt.SigningMethod
	switch strings.ToUpper(algorithm) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	s := &TokenService{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL 返回 Token 有效期。
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue 为 subject 签发 Token，extra 中的附加声明原样写入载荷。
//
// sub / iat / exp / jti 由服务填写，extra 包含这些键时返回错误。iat 以秒为精度编码，
// Token 在 [iat, iat+ttl) 内有效。
func (s *TokenService) Issue(subject string, extra map[string]any) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("token subject is empty")
	}
	claims := &Claims{}
	for k, v := range extra {
		if reservedClaims[k] {
			return "", nil, fmt.Errorf("claim %q is reserved", k)
		}
		if k == "email" {
			email, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("claim \"email\" must be a string, got %T", v)
			}
			claims.Email = email
			continue
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any, len(extra))
		}
		claims.Extra[k] = v
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify 校验 Token，当且仅当 now < exp 且签名有效时返回载荷。
func (s *TokenService) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

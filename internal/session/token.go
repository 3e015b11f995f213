package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = errors.New("invalid session token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("session token expired")
	// ErrTokenMismatch 令牌与请求的会话不符
	ErrTokenMismatch = errors.New("session token does not match session")
)

// Claims 会话令牌声明，Subject 为会话ID
type Claims struct {
	jwt.RegisteredClaims
}

// SessionID 返回令牌对应的会话ID
func (c *Claims) SessionID() string {
	return c.Subject
}

// TokenManager 签发并校验会话令牌
type TokenManager struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret, issuer string, expiry time.Duration) *TokenManager {
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry 返回令牌有效期
func (m *TokenManager) Expiry() time.Duration {
	return m.expiry
}

// Issue 为会话签发令牌
func (m *TokenManager) Issue(sessionID string) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌并返回声明
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyFor 校验令牌且要求其属于指定会话
func (m *TokenManager) VerifyFor(tokenString, sessionID string) error {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return err
	}
	if claims.SessionID() != sessionID {
		return ErrTokenMismatch
	}
	return nil
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextSessionID 认证通过后写入 gin 上下文的会话ID键
const ContextSessionID = "sessionID"

// TokenVerifier 校验令牌是否属于指定会话
type TokenVerifier interface {
	VerifyFor(token, sessionID string) error
}

// SessionAuth 会话令牌认证中间件
type SessionAuth struct {
	tokens TokenVerifier
	log    *zap.Logger
}

// NewSessionAuth 创建会话认证中间件
func NewSessionAuth(tokens TokenVerifier, log *zap.Logger) *SessionAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionAuth{tokens: tokens, log: log}
}

// RequireSession 要求令牌与路径中的 :id 对应
func (sa *SessionAuth) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		token := ExtractSessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "session token required",
			})
			return
		}

		if err := sa.tokens.VerifyFor(token, sessionID); err != nil {
			sa.log.Warn("invalid session token",
				zap.String("session", sessionID),
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "invalid or expired session token",
			})
			return
		}

		c.Set(ContextSessionID, sessionID)
		c.Next()
	}
}

// ExtractSessionToken 从请求中提取会话令牌
//
// 依次检查 X-Session-Token 头、Authorization Bearer 和 token 查询参数
// （浏览器 WebSocket 无法设置请求头）。
func ExtractSessionToken(c *gin.Context) string {
	if token := c.GetHeader("X-Session-Token"); token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	return c.Query("token")
}

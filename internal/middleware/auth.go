package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/utils"
)

const (
	contextUserID   = "userID"
	contextNickname = "nickname"
	contextToken    = "token"
)

// AuthMiddleware 玩家身份中间件。未启用JWT时直接信任请求中的 user_id
type AuthMiddleware struct {
	jwt     *utils.JWTManager
	enabled bool
}

// NewAuthMiddleware 创建认证中间件，jwt 为 nil 表示未启用
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:     jwt,
		enabled: jwt != nil,
	}
}

// Enabled 是否启用JWT
func (m *AuthMiddleware) Enabled() bool {
	return m.enabled
}

// RequireAuth 需要识别出玩家身份
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.identify(c) {
			return
		}
		if _, ok := GetUserID(c); !ok {
			abort(c, apperrors.New(apperrors.ErrAuthentication, "缺少用户身份"))
			return
		}
		c.Next()
	}
}

// OptionalAuth 有身份时写入上下文，没有时继续
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.enabled {
			if token := extractToken(c); token != "" {
				if claims, err := m.jwt.ValidateToken(token); err == nil {
					setIdentity(c, claims.UserID, claims.Nickname, token)
				}
			}
		} else if id := queryUserID(c); id != "" {
			setIdentity(c, id, "", "")
		}
		c.Next()
	}
}

// identify 解析身份，令牌无效时中止请求并返回 false
func (m *AuthMiddleware) identify(c *gin.Context) bool {
	if !m.enabled {
		if id := queryUserID(c); id != "" {
			setIdentity(c, id, "", "")
		}
		return true
	}

	token := extractToken(c)
	if token == "" {
		abort(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
		return false
	}
	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		code := apperrors.ErrTokenInvalid
		if err == utils.ErrExpiredToken {
			code = apperrors.ErrTokenExpired
		}
		abort(c, apperrors.Wrap(err, code))
		return false
	}
	if claims.TokenType != utils.TokenTypeAccess {
		abort(c, apperrors.New(apperrors.ErrTokenInvalid, "需要访问令牌"))
		return false
	}
	setIdentity(c, claims.UserID, claims.Nickname, token)
	return true
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.NewErrorResponse(err, c.GetHeader("X-Request-ID")))
}

func setIdentity(c *gin.Context, userID, nickname, token string) {
	c.Set(contextUserID, userID)
	if nickname != "" {
		c.Set(contextNickname, nickname)
	}
	if token != "" {
		c.Set(contextToken, token)
	}
}

// queryUserID 未启用JWT时的身份来源
func queryUserID(c *gin.Context) string {
	if id := c.Query("user_id"); id != "" {
		return id
	}
	return c.GetHeader("X-User-ID")
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. 从Authorization Header获取 (Bearer Token)
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. 从X-Access-Token Header获取
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. 从Query参数获取，浏览器建立WebSocket时无法设置Header
	return c.Query("token")
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) (string, bool) {
	if userID, exists := c.Get(contextUserID); exists {
		if id, ok := userID.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// GetNickname 从上下文获取昵称
func GetNickname(c *gin.Context) (string, bool) {
	if nickname, exists := c.Get(contextNickname); exists {
		if name, ok := nickname.(string); ok {
			return name, true
		}
	}
	return "", false
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(m *AuthMiddleware) *gin.Engine {
	r := gin.New()
	handler := func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	}
	r.GET("/required", m.RequireAuth(), handler)
	r.GET("/optional", m.OptionalAuth(), handler)
	return r
}

func do(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorCode {
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestAuth_Disabled(t *testing.T) {
	r := newRouter(NewAuthMiddleware(nil))

	w := do(r, "/required?user_id=alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = do(r, "/required", map[string]string{"X-User-ID": "bob"})
	assert.Equal(t, "bob", w.Body.String())

	w = do(r, "/required", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ErrAuthentication, errorCode(t, w))

	w = do(r, "/optional", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestAuth_JWT(t *testing.T) {
	manager := utils.NewJWTManager("secret", time.Hour, 24*time.Hour)
	r := newRouter(NewAuthMiddleware(manager))

	access, err := manager.GenerateAccessToken("alice", "")
	require.NoError(t, err)
	refresh, err := manager.GenerateRefreshToken("alice")
	require.NoError(t, err)
	expired, err := utils.NewJWTManager("secret", -time.Hour, time.Hour).GenerateAccessToken("alice", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		code   apperrors.ErrorCode
		body   string
	}{
		{"Bearer令牌", "/required", map[string]string{"Authorization": "Bearer " + access}, http.StatusOK, 0, "alice"},
		{"Header令牌", "/required", map[string]string{"X-Access-Token": access}, http.StatusOK, 0, "alice"},
		{"Query令牌", "/required?token=" + access, nil, http.StatusOK, 0, "alice"},
		{"忽略user_id参数", "/required?user_id=mallory&token=" + access, nil, http.StatusOK, 0, "alice"},
		{"缺少令牌", "/required?user_id=alice", nil, http.StatusUnauthorized, apperrors.ErrAuthentication, ""},
		{"无效令牌", "/required?token=bad", nil, http.StatusUnauthorized, apperrors.ErrTokenInvalid, ""},
		{"过期令牌", "/required?token=" + expired, nil, http.StatusUnauthorized, apperrors.ErrTokenExpired, ""},
		{"刷新令牌不能访问", "/required?token=" + refresh, nil, http.StatusUnauthorized, apperrors.ErrTokenInvalid, ""},
		{"可选认证无令牌", "/optional?user_id=mallory", nil, http.StatusOK, 0, ""},
		{"可选认证有令牌", "/optional?token=" + access, nil, http.StatusOK, 0, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.code != 0 {
				assert.Equal(t, tt.code, errorCode(t, w))
			} else {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAuth_Nickname(t *testing.T) {
	manager := utils.NewJWTManager("secret", time.Hour, 24*time.Hour)
	r := gin.New()
	r.GET("/me", NewAuthMiddleware(manager).RequireAuth(), func(c *gin.Context) {
		name, ok := GetNickname(c)
		if !ok {
			name = "-"
		}
		c.String(http.StatusOK, name)
	})

	named, err := manager.GenerateAccessToken("alice", "爱丽丝")
	require.NoError(t, err)
	anonymous, err := manager.GenerateAccessToken("bob", "")
	require.NoError(t, err)

	assert.Equal(t, "爱丽丝", do(r, "/me?token="+named, nil).Body.String())
	assert.Equal(t, "-", do(r, "/me?token="+anonymous, nil).Body.String())
}

package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager(
		"test-secret-key",
		1*time.Hour,    // access token expiry
		7*24*time.Hour, // refresh token expiry
	)
}

// 测试获取令牌过期时间
func (suite *JWTTestSuite) TestGetTokenExpiry() {
	suite.Equal(1*time.Hour, suite.manager.GetTokenExpiry(TokenTypeAccess))
	suite.Equal(7*24*time.Hour, suite.manager.GetTokenExpiry(TokenTypeRefresh))
	// 未知类型默认返回访问令牌过期时间
	suite.Equal(1*time.Hour, suite.manager.GetTokenExpiry("unknown"))
}

// 测试验证令牌
func (suite *JWTTestSuite) TestValidateToken() {
	token, err := suite.manager.GenerateAccessToken("player-789", "小明")
	suite.Require().NoError(err)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("player-789", claims.UserID)
	suite.Equal("player-789", claims.Subject)
	suite.Equal("小明", claims.Nickname)
	suite.Equal(TokenTypeAccess, claims.TokenType)
}

// 测试验证无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	claims, err := suite.manager.ValidateToken("invalid.token.format")
	suite.Error(err)
	suite.Nil(claims)

	// 错误的签名
	wrongManager := NewJWTManager("wrong-secret", 1*time.Hour, 24*time.Hour)
	token, _ := wrongManager.GenerateAccessToken("u1", "")
	claims, err = suite.manager.ValidateToken(token)
	suite.Error(err)
	suite.Nil(claims)

	// 缺少用户ID
	token, _ = suite.manager.GenerateAccessToken("", "")
	claims, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrInvalidToken)
	suite.Nil(claims)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestExpiredToken() {
	expiredManager := NewJWTManager("test-secret-key", -1*time.Hour, -1*time.Hour)
	token, _ := expiredManager.GenerateAccessToken("u1", "")

	claims, err := suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
	suite.Nil(claims)
}

// 测试刷新访问令牌
func (suite *JWTTestSuite) TestRefreshAccessToken() {
	refreshToken, err := suite.manager.GenerateRefreshToken("player-222")
	suite.Require().NoError(err)

	newAccessToken, err := suite.manager.RefreshAccessToken(refreshToken, "阿强")
	suite.Require().NoError(err)

	claims, err := suite.manager.ValidateToken(newAccessToken)
	suite.Require().NoError(err)
	suite.Equal("player-222", claims.UserID)
	suite.Equal("阿强", claims.Nickname)

	// 访问令牌不能用于刷新
	_, err = suite.manager.RefreshAccessToken(newAccessToken, "")
	suite.ErrorIs(err, ErrNotRefreshJWT)
}

// 测试并发生成令牌
func (suite *JWTTestSuite) TestConcurrentTokenGeneration() {
	done := make(chan string, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			token, err := suite.manager.GenerateAccessToken(fmt.Sprintf("user%d", id), "")
			if err != nil {
				token = ""
			}
			done <- token
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token := <-done
		suite.NotEmpty(token)
		seen[token] = true
	}
	suite.Len(seen, 10)
}

func TestJWTTestSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}

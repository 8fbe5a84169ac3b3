package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/myysophia/replay-ingest/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// 定义错误
var (
	ErrInvalidToken    = errors.New("令牌无效")
	ErrExpiredToken    = errors.New("令牌已过期")
	ErrInvalidPassword = errors.New("密码错误")
)

// Claims 运维 JWT 声明
type Claims struct {
	Operator string `json:"operator"`
	jwt.StandardClaims
}

// GenerateToken 生成运维 JWT 令牌
func GenerateToken(operator string, jwtConfig *config.JWTConfig) (string, error) {
	now := time.Now()
	claims := &Claims{
		Operator: operator,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(jwtConfig.GetJWTExpiration()).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    jwtConfig.Issuer,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(jwtConfig.SecretKey))
	if err != nil {
		return "", fmt.Errorf("生成令牌失败: %w", err)
	}
	return tokenString, nil
}

// ParseToken 解析JWT令牌
func ParseToken(tokenString string, jwtConfig *config.JWTConfig) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtConfig.SecretKey), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// CheckAdminPassword 校验运维密码
func CheckAdminPassword(password string, jwtConfig *config.JWTConfig) error {
	if jwtConfig.AdminPasswordHash == "" {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(jwtConfig.AdminPasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword 生成 bcrypt 哈希，用于填写 jwt.admin_password_hash
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("生成密码哈希失败: %w", err)
	}
	return string(b), nil
}

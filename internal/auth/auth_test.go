package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testTokenKey = "0f5a3c7e-8a3b-4b59-9d8e-2d6c1a4f9b10"

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gdb, mock
}

func TestTokenResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("found and cached", func(t *testing.T) {
		gdb, mock := setupMockDB(t)
		resolver := NewTokenResolver(gdb, 16, time.Minute)

		// 只查询一次数据库，第二次命中缓存
		mock.ExpectQuery(`SELECT \* FROM "auth_tokens" WHERE \(?key = \$1 AND enabled = \$2`).
			WithArgs(testTokenKey, true, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "key", "owner", "enabled"}).
				AddRow(1, testTokenKey, "tester", true))

		token, err := resolver.ResolveToken(ctx, "Token "+testTokenKey)
		require.NoError(t, err)
		assert.Equal(t, "tester", token.Owner)

		token, err = resolver.ResolveToken(ctx, "token "+testTokenKey)
		require.NoError(t, err)
		assert.Equal(t, uint(1), token.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		gdb, mock := setupMockDB(t)
		resolver := NewTokenResolver(gdb, 16, time.Minute)

		mock.ExpectQuery(`SELECT \* FROM "auth_tokens"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := resolver.ResolveToken(ctx, "Token "+testTokenKey)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("malformed header", func(t *testing.T) {
		gdb, _ := setupMockDB(t)
		resolver := NewTokenResolver(gdb, 16, time.Minute)

		for _, header := range []string{"", "Token", "Bearer " + testTokenKey, "Token not-a-uuid"} {
			_, err := resolver.ResolveToken(ctx, header)
			assert.ErrorIs(t, err, ErrInvalidCredential, header)
		}
	})
}

func TestAPIKeyResolver(t *testing.T) {
	ctx := context.Background()
	gdb, mock := setupMockDB(t)
	resolver := NewAPIKeyResolver(gdb, 16, time.Minute)

	mock.ExpectQuery(`SELECT \* FROM "api_keys" WHERE \(?key = \$1 AND enabled = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "full_name", "enabled"}).
			AddRow(9, testTokenKey, "HDT", true))

	apiKey, err := resolver.ResolveAPIKey(ctx, testTokenKey)
	require.NoError(t, err)
	assert.Equal(t, uint(9), apiKey.ID)
	assert.Equal(t, "HDT", apiKey.FullName)

	_, err = resolver.ResolveAPIKey(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWT(t *testing.T) {
	cfg := &config.JWTConfig{SecretKey: "secret", ExpiresIn: 3600, Issuer: "replay-ingest"}

	token, err := GenerateToken("ops", cfg)
	require.NoError(t, err)

	claims, err := ParseToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "replay-ingest", claims.Issuer)

	_, err = ParseToken(token, &config.JWTConfig{SecretKey: "other"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("ops", &config.JWTConfig{SecretKey: "secret", ExpiresIn: -10})
	require.NoError(t, err)
	_, err = ParseToken(expired, cfg)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCheckAdminPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	cfg := &config.JWTConfig{AdminPasswordHash: hash}
	assert.NoError(t, CheckAdminPassword("s3cret", cfg))
	assert.ErrorIs(t, CheckAdminPassword("wrong", cfg), ErrInvalidPassword)
	assert.ErrorIs(t, CheckAdminPassword("s3cret", &config.JWTConfig{}), ErrInvalidPassword)
}

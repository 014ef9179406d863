package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campusauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  http_port: 9000
  store: memory
  log_level: debug
  trust_proxy: true
dependencies:
  redis_url: redis://localhost:6379/0
auth:
  issuer: campus-test
  session_ttl: 2h
  lockout_threshold: 3
  lockout_duration: 90s
  login_extension_days: 14
  totp_skew: 2
  count_mfa_failures: false
  password_algorithm: BCRYPT
seed:
  admin_username: root
  admin_password: admin-password-123
`)
	t.Setenv("JWT_SIGNING_KEY", testKey)
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "campus-test", cfg.Auth.JWT.Issuer)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWT.SessionTTL)
	assert.Equal(t, 3, cfg.Auth.Lockout.Threshold)
	assert.Equal(t, 90*time.Second, cfg.Auth.Lockout.Duration)
	assert.False(t, cfg.Auth.Lockout.CountMFAFailures)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.Lifecycle.LoginExtension)
	assert.Equal(t, 2, cfg.Auth.TOTP.Skew)
	assert.Equal(t, "bcrypt", cfg.Auth.Password.Algorithm)
	assert.Equal(t, []byte(testKey), cfg.Auth.JWT.SigningKey)
	assert.Equal(t, "root", cfg.SeedAdminUsername)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", testKey)
	t.Setenv("DB_URL", "postgres://localhost/campus")
	t.Setenv("REDIS_URL", "localhost:6379")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, int32(20), cfg.MaxDBConns)
	assert.Equal(t, campusauth.DefaultConfig().Lockout.Threshold, cfg.Auth.Lockout.Threshold)
	assert.True(t, cfg.Auth.Audit.Enabled)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadConfigTrustProxyFromEnv(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", testKey)
	t.Setenv("DB_URL", "postgres://localhost/campus")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("HTTP_TRUST_PROXY", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxy)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no database", map[string]string{"JWT_SIGNING_KEY": testKey, "REDIS_URL": "x:1"}, "DB_URL"},
		{"no redis", map[string]string{"JWT_SIGNING_KEY": testKey, "DB_URL": "postgres://x"}, "REDIS_URL"},
		{"no key", map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "x:1"}, "auth config"},
		{"bad store", map[string]string{"JWT_SIGNING_KEY": testKey, "REDIS_URL": "x:1", "CAMPUSAUTH_STORE": "mongo"}, "unknown store"},
		{"half seed", map[string]string{"JWT_SIGNING_KEY": testKey, "REDIS_URL": "x:1", "CAMPUSAUTH_STORE": "memory", "SEED_ADMIN_USERNAME": "root"}, "seed admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "service: [unclosed")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse config file"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := ConnectRedis(ctx, mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	client, err = ConnectRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(ctx, addr)
	assert.Error(t, err)
}

func TestSeedAdmin(t *testing.T) {
	cfg := Config{Auth: campusauth.DefaultConfig(), SeedAdminUsername: "root", SeedAdminPassword: "admin-password-123"}
	cfg.Auth.Password.Algorithm = "bcrypt"
	cfg.Auth.Password.BcryptCost = 4

	store := memory.New()
	require.NoError(t, seedAdmin(context.Background(), store, cfg))

	u, err := store.GetUserByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, u.HasRole(cfg.Auth.Lifecycle.AdminRole))
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2"))
}

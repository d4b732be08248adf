package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600), "test config must write")
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"api-key": "filekey",
		"api-secret": "filesecret",
		"verification-tier": "starter"
	}`)

	t.Setenv(APIKeyEnv, "")
	t.Setenv(APISecretEnv, "")
	t.Setenv(VerificationTierEnv, "")

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err, "Load must not error")
	assert.Equal(t, "filekey", cfg.Credentials.Key, "key should come from the file")
	assert.Equal(t, "filesecret", cfg.Credentials.Secret, "secret should come from the file")
	assert.Equal(t, "starter", cfg.Credentials.VerificationTier, "tier should come from the file")
	assert.Equal(t, DefaultRESTEndpoint, cfg.RESTEndpoint, "REST endpoint should default")
	assert.Equal(t, DefaultWSEndpoint, cfg.WebsocketEndpoint, "websocket endpoint should default")
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"api-key": "filekey", "api-secret": "filesecret"}`)
	t.Setenv(APIKeyEnv, "envkey")
	t.Setenv(APISecretEnv, "")
	t.Setenv(VerificationTierEnv, "pro")

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err, "Load must not error")
	assert.Equal(t, "envkey", cfg.Credentials.Key, "environment should override the file")
	assert.Equal(t, "filesecret", cfg.Credentials.Secret, "unset env vars should fall back to the file")
	assert.Equal(t, "pro", cfg.Credentials.VerificationTier, "env-only values should resolve")
	assert.Equal(t, "envkey", cfg.GetString(APIKeyConfig), "resolved values should be written back to the store")
}

func TestLoadMissingCredentialsIsNotFatal(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	t.Setenv(APISecretEnv, "")
	t.Setenv(VerificationTierEnv, "")
	t.Setenv(OTPSecretEnv, "")

	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err, "absent credentials must degrade, not fail")
	assert.True(t, cfg.Credentials.IsEmpty(), "credentials should be empty in sandbox mode")
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	require.NoError(t, err, "missing config file must degrade, not fail")
	assert.Equal(t, DefaultRESTEndpoint, cfg.RESTEndpoint, "defaults should still resolve")
}

func TestOneTimePassword(t *testing.T) {
	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)

	code, err := cfg.OneTimePassword()
	require.NoError(t, err, "no OTP secret should be a no-op")
	assert.Empty(t, code, "no OTP secret should yield no code")

	cfg.Credentials.OTPSecret = "JBSWY3DPEHPK3PXP"
	code, err = cfg.OneTimePassword()
	require.NoError(t, err, "OneTimePassword must not error with a valid secret")
	assert.Len(t, code, 6, "TOTP codes are six digits")
}

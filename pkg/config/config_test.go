package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
}

func TestFromEnvCollectsEverySetVariable(t *testing.T) {
	setEnv(t, EnvDeviceID, "edge-01")
	setEnv(t, EnvSalt, "deadbeef")
	setEnv(t, EnvLogLevel, "debug")
	setEnv(t, EnvLogFormat, "json")
	setEnv(t, EnvSoftHSMDir, "/var/lib/trustedge/hsm")
	setEnv(t, EnvYubiKeyPIN, "123456")
	setEnv(t, EnvYubiKeyMaxPINRetries, "5")
	setEnv(t, EnvAWSKMSKeyID, "arn:aws:kms:us-east-1:1234:key/abc")
	setEnv(t, EnvRegistryCacheAddr, "localhost:6379")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "edge-01", cfg.DeviceID)
	require.Equal(t, "deadbeef", cfg.Salt)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "/var/lib/trustedge/hsm", cfg.SoftHSMDir)
	require.Equal(t, "123456", cfg.YubiKeyPIN)
	require.Equal(t, 5, cfg.YubiKeyMaxPINRetries)
	require.Equal(t, "arn:aws:kms:us-east-1:1234:key/abc", cfg.AWSKMSKeyID)
	require.Equal(t, "localhost:6379", cfg.RegistryCacheAddr)
}

func TestFromEnvLeavesUnsetFieldsAtZeroValue(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)
}

func TestFromEnvRejectsNonIntegerMaxPINRetries(t *testing.T) {
	setEnv(t, EnvYubiKeyMaxPINRetries, "not-a-number")
	_, err := FromEnv()
	require.Error(t, err)
}

// Package config is a convenience collector for the environment variables
// outer collaborators (CLIs, daemons, test harnesses) use to configure
// TrustEdge components. The core library packages never read these
// directly — pkg/backend/softhsm, pkg/backend/yubikey, pkg/backend/awskms,
// pkg/envelope and pkg/archive all take explicit Go structs — mirroring how
// the teacher's pkg/config is consumed by cmd/* but never by pkg/node
// itself.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Env var names, following the teacher's Env*-constant naming
// (cmd/kmsServer/main.go's urfave/cli flags each carry one of these as
// their EnvVars entry).
const (
	EnvDeviceID             = "TRUSTEDGE_DEVICE_ID"
	EnvSalt                 = "TRUSTEDGE_SALT"
	EnvLogLevel             = "TRUSTEDGE_LOG_LEVEL"
	EnvLogFormat            = "TRUSTEDGE_LOG_FORMAT"
	EnvSoftHSMDir           = "TRUSTEDGE_SOFTHSM_DIR"
	EnvYubiKeyPIN           = "TRUSTEDGE_YUBIKEY_PIN"
	EnvYubiKeyMaxPINRetries = "TRUSTEDGE_YUBIKEY_MAX_PIN_RETRIES"
	EnvAWSKMSKeyID          = "TRUSTEDGE_AWSKMS_KEY_ID"
	EnvRegistryCacheAddr    = "TRUSTEDGE_REGISTRY_CACHE_ADDR"
)

// Config collects every environment-sourced setting a TrustEdge-Core
// collaborator might need. Every field is optional; the zero value means
// "not configured", and it is up to the collaborator to apply its own
// defaults.
type Config struct {
	DeviceID             string
	Salt                 string
	LogLevel             string
	LogFormat            string
	SoftHSMDir           string
	YubiKeyPIN           string
	YubiKeyMaxPINRetries int
	AWSKMSKeyID          string
	RegistryCacheAddr    string
}

// FromEnv reads every TRUSTEDGE_* variable into a Config. Unset variables
// leave their field at the zero value. The only variable that can produce
// an error is EnvYubiKeyMaxPINRetries, when set to a non-integer value.
func FromEnv() (Config, error) {
	cfg := Config{
		DeviceID:          os.Getenv(EnvDeviceID),
		Salt:              os.Getenv(EnvSalt),
		LogLevel:          os.Getenv(EnvLogLevel),
		LogFormat:         os.Getenv(EnvLogFormat),
		SoftHSMDir:        os.Getenv(EnvSoftHSMDir),
		YubiKeyPIN:        os.Getenv(EnvYubiKeyPIN),
		AWSKMSKeyID:       os.Getenv(EnvAWSKMSKeyID),
		RegistryCacheAddr: os.Getenv(EnvRegistryCacheAddr),
	}

	if raw := os.Getenv(EnvYubiKeyMaxPINRetries); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid integer %q: %w", EnvYubiKeyMaxPINRetries, raw, err)
		}
		cfg.YubiKeyMaxPINRetries = n
	}

	return cfg, nil
}

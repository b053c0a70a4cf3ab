package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Registration.AuthTimeout)
	assert.Equal(t, 10*time.Second, cfg.Registration.NotifyTimeout)
	assert.False(t, cfg.Registration.IdentityAdminEnabled)
	assert.True(t, cfg.Registration.SignupsEnabled)
	assert.Equal(t, NotifierLog, cfg.Notifier.Backend)
	assert.Equal(t, 10, cfg.Registration.RateLimit)
	assert.Equal(t, time.Hour, cfg.Registration.RateWindow)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ONBOARDING_REGISTRATION_AUTH_TIMEOUT", "2s")
	t.Setenv("ONBOARDING_NOTIFIER_BACKEND", "KAFKA")
	t.Setenv("ONBOARDING_NOTIFIER_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ONBOARDING_POSTGRES_URL", "postgres://app@db/onboarding")
	t.Setenv("ONBOARDING_SERVER_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Registration.AuthTimeout)
	assert.Equal(t, NotifierKafka, cfg.Notifier.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notifier.Brokers)
	assert.Equal(t, "postgres://app@db/onboarding", cfg.Postgres.URL)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.Server.TrustedProxies)
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ONBOARDING_SERVER_ADMIN_TOKEN=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ONBOARDING_SERVER_ADMIN_TOKEN") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Server.AdminToken)
}

func TestLoadMissingDotenvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ONBOARDING_NOTIFIER_BACKEND", "amqp")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amqp url")
}

func TestValidateRateWindow(t *testing.T) {
	t.Setenv("ONBOARDING_REGISTRATION_RATE_WINDOW", "0s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate window")
}

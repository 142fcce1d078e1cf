package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "auth:\n  hmac_secret: "+testSecret+"\n"))
	require.NoError(t, err)
	require.Equal(t, defaultListen, cfg.ListenAddress)
	require.Equal(t, defaultMetricsListen, cfg.MetricsAddress)
	require.Equal(t, filepath.Join(defaultDataDir, defaultGenesis), cfg.GenesisPath)
	require.Equal(t, filepath.Join(defaultDataDir, "hubd.db"), cfg.DatabaseDSN)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew)
	require.Equal(t, 120.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 20, cfg.RateLimit.Burst)
	require.Equal(t, []string{"traces", "metrics"}, cfg.Telemetry.Signals)
}

func TestLoadTelemetrySignals(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.Join([]string{
		"auth:",
		"  hmac_secret: " + testSecret,
		"telemetry:",
		"  enabled: true",
		"  endpoint: \" collector:4318 \"",
		"  signals: [\" Metrics \", \"\"]",
	}, "\n")))
	require.NoError(t, err)
	require.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
	require.Equal(t, []string{"metrics"}, cfg.Telemetry.Signals)
	require.True(t, cfg.Telemetry.Exports("metrics"))
	require.False(t, cfg.Telemetry.Exports("traces"))
}

func TestLoadResolvesSecretFromEnv(t *testing.T) {
	t.Setenv("HUBD_TEST_SECRET", testSecret)
	cfg, err := Load(writeConfig(t, strings.Join([]string{
		"listen: 127.0.0.1:9000",
		"auth:",
		"  hmac_secret_env: HUBD_TEST_SECRET",
		"  clock_skew: 30s",
		"log:",
		"  file: /tmp/hubd.log",
	}, "\n")))
	require.NoError(t, err)
	require.Equal(t, testSecret, cfg.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew)
	require.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing secret": "listen: :1\n",
		"short secret":   "auth:\n  hmac_secret: short\n",
		"same listeners": "listen: :9\nmetrics_listen: :9\nauth:\n  hmac_secret: " + testSecret + "\n",
		"webhook secret": "webhook:\n  url: http://hooks\nauth:\n  hmac_secret: " + testSecret + "\n",
		"unknown signal": "telemetry:\n  signals: [logs]\nauth:\n  hmac_secret: " + testSecret + "\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
	_, err := Load("")
	require.Error(t, err)
}

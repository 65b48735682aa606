package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rbright/rehearse/internal/auth"
	"github.com/rbright/rehearse/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return v != "" },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckConfigReportsDefaults(t *testing.T) {
	check := checkConfig(config.Loaded{Path: "/tmp/missing.yaml"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "using defaults")

	check = checkConfig(config.Loaded{Path: "/tmp/config.yaml", Exists: true})
	require.Contains(t, check.Message, `loaded "/tmp/config.yaml"`)
}

func TestCheckCredentialNamesSourceWithoutToken(t *testing.T) {
	t.Setenv("TEST_DOCTOR_TOKEN", "secret-token")

	check := checkCredential(auth.NewResolver("TEST_DOCTOR_TOKEN", ""))
	require.True(t, check.Pass)
	require.Equal(t, "using env TEST_DOCTOR_TOKEN", check.Message)
	require.NotContains(t, check.Message, "secret-token")
}

func TestCheckCredentialMissing(t *testing.T) {
	t.Setenv("TEST_DOCTOR_TOKEN", "")

	check := checkCredential(auth.NewResolver("TEST_DOCTOR_TOKEN", filepath.Join(t.TempDir(), "token")))
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no credential configured")
}

func TestCheckServiceSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/check", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"authenticated":true}`))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Service.BaseURL = server.URL + "/api"

	check := checkService(context.Background(), cfg, auth.Static("tok"))
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "authenticated at")
}

func TestCheckServiceRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Service.BaseURL = server.URL

	check := checkService(context.Background(), cfg, auth.Static("tok"))
	require.False(t, check.Pass)
	require.Equal(t, "service.auth", check.Name)
}

func TestCheckSpeechCredentialsMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Speech.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")

	check := checkSpeechCredentials(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "answers can still be typed")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestCheckBrokersWithoutBrokers(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Enable = true

	check := checkBrokers(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no brokers configured")
}

func TestRunSkipsServiceWithoutCredential(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	t.Setenv("REHEARSE_TOKEN", "")

	cfg := config.Default()
	cfg.Auth.TokenFile = filepath.Join(t.TempDir(), "token")
	cfg.Speech.Enable = false

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg})
	require.False(t, report.OK())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "auth.credential", "audio.device"}, names)
}

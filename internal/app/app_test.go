package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prodtrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points the configuration at a scratch directory and returns the
// report output directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	reports := filepath.Join(dir, "reports")
	for key, val := range map[string]string{
		"CONFIG_PATH":              filepath.Join(dir, "missing.yaml"),
		"DB_PATH":                  filepath.Join(dir, "prodtrack.db"),
		"TIMEZONE":                 "UTC",
		"LOG_LEVEL":                "error",
		"LOG_FORMAT":               "json",
		"REPORT_OUTPUT_DIR":        reports,
		"REPORT_NAME":              "Producao",
		"SLACK_BOT_TOKEN":          "",
		"SLACK_CHANNEL_ID":         "",
		"LLM_PROVIDER":             "none",
		"DOWNTIME_GLOSSARY_PATH":   "",
		"OPEN_RECORD_MAX_AGE_DAYS": "",
		"EXTERNAL_TIMEOUT_SECONDS": "",
		"NUDGE_SUPERVISORS":        "",
	} {
		t.Setenv(key, val)
	}
	t.Setenv("REPORT_SCHEDULE", "")
	t.Setenv("NUDGE_SCHEDULE", "")
	return reports
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), args, &out)
	return out.String(), err
}

func TestAdministrationCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "database ready")

	out, err = run(t, "user", "add", "maria", "--superuser")
	require.NoError(t, err)
	assert.Equal(t, "user 1 maria\n", out)

	out, err = run(t, "line", "add", "Linha 1", "--sector", "Montagem", "--capacity", "120")
	require.NoError(t, err)
	assert.Equal(t, "line 1 Linha 1\n", out)

	out, err = run(t, "line", "list")
	require.NoError(t, err)
	assert.Equal(t, "1\tLinha 1\tMontagem\t120/h\n", out)

	out, err = run(t, "grant", "1", " Montagem ")
	require.NoError(t, err)
	assert.Contains(t, out, `sector "Montagem"`)

	_, err = run(t, "revoke", "1", "Montagem")
	require.NoError(t, err)

	_, err = run(t, "line", "add", "Sem capacidade", "--sector", "Montagem")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransitionCommands(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "finalize", "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = run(t, "reopen", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record id")

	_, err = run(t, "recompute")
	require.Error(t, err)

	out, err := run(t, "recompute", "--all")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReportCommandWritesFile(t *testing.T) {
	reports := setupEnv(t)

	out, err := run(t, "report", "--date", "2026-03-14")
	require.NoError(t, err)
	assert.Contains(t, out, "0 rows")

	data, err := os.ReadFile(filepath.Join(reports, "Producao_20260314.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Producao - 14/03/2026"))

	_, err = run(t, "report", "--date", "14/03/2026")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNudgeCommandNeedsSlack(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "nudge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_BOT_TOKEN")
}

func TestGlossaryAddCommand(t *testing.T) {
	setupEnv(t)
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terms: []\n"), 0o644))
	t.Setenv("DOWNTIME_GLOSSARY_PATH", path)

	out, err := run(t, "glossary", "add", "Falta de bobina", "Falta de material")
	require.NoError(t, err)
	assert.Contains(t, out, "Falta de material")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Falta de bobina")

	t.Setenv("DOWNTIME_GLOSSARY_PATH", "")
	_, err = run(t, "glossary", "add", "x", "y")
	assert.Error(t, err)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeStartsAndShutsDownOnCancel(t *testing.T) {
	setupEnv(t)
	addr := freeAddr(t)
	t.Setenv("LISTEN_ADDR", addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{"serve"}, io.Discard)
	}()

	client := &http.Client{Timeout: time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "server never became healthy")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, err := client.Get("http://" + addr + "/healthz")
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	setupEnv(t)
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")

	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := newLogger("debug", format)
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(-1), "debug enabled for %s", format)
	}
	_, err := newLogger("loud", "json")
	assert.Error(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}

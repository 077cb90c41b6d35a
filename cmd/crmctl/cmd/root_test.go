package cmd

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"crm-service/internal/service/migration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("APP_ENV", "test")

	// flags keep their values between executions
	migrateDryRun, migrateReport = false, ""
	resolveEmail, resolvePhone = "", ""
	outputFormat = "text"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateDryRunWritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	out, err := run(t, "migrate-conversations", "--dry-run", "--report", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var report migration.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.True(t, report.DryRun)
	assert.Zero(t, report.TotalConversations)
}

func TestResolveRequiresContact(t *testing.T) {
	_, err := run(t, "resolve")
	assert.Error(t, err)
}

func TestResolveNoMatch(t *testing.T) {
	out, err := run(t, "resolve", "--email", "nobody@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "No customer found")
}

func TestMergeUnknownCustomers(t *testing.T) {
	_, err := run(t, "merge", "missing-a", "missing-b")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt_private.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	t.Setenv("JWT_PRIVATE_KEY_PATH", path)

	out, err := run(t, "token", "ops-1", "--role", "admin", "-o", "json")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["jti"])
}

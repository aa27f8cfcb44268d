package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/NeuralTrust/EdgeShield/pkg/domain/audit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliSecret = "cli-secret"

func writeRecord(t *testing.T, event map[string]interface{}, secret string) string {
	t.Helper()
	canonical, err := signature.Canonicalize(event)
	require.NoError(t, err)
	sig, err := signature.Sign(canonical, secret)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]interface{}{
		"event":     json.RawMessage(canonical),
		"algorithm": audit.SignatureAlgorithm,
		"signature": sig,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func runCLI(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testEvent() map[string]interface{} {
	return map[string]interface{}{
		"id":        "evt-1",
		"type":      "user.login",
		"timestamp": "2025-03-01T10:00:00Z",
		"actor_id":  "user-42",
	}
}

func TestAuditVerify_ValidRecord(t *testing.T) {
	path := writeRecord(t, testEvent(), cliSecret)

	out, err := runCLI("audit", "verify", path, "--secret", cliSecret)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["valid"])
	assert.Equal(t, "evt-1", result["id"])
	assert.Equal(t, "user.login", result["type"])
}

func TestAuditVerify_SecretFromEnv(t *testing.T) {
	path := writeRecord(t, testEvent(), cliSecret)
	t.Setenv(secretEnv, cliSecret)

	_, err := runCLI("audit", "verify", path)
	assert.NoError(t, err)
}

func TestAuditVerify_WrongSecret(t *testing.T) {
	path := writeRecord(t, testEvent(), "other-secret")

	_, err := runCLI("audit", "verify", path, "--secret", cliSecret)
	assert.ErrorIs(t, err, auditlogs.ErrRecordTampered)
}

func TestAuditVerify_MissingFile(t *testing.T) {
	_, err := runCLI("audit", "verify", filepath.Join(t.TempDir(), "absent.json"), "--secret", cliSecret)
	assert.Error(t, err)
}

func TestAuditVerify_RequiresFile(t *testing.T) {
	_, err := runCLI("audit", "verify")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI("version")
	require.NoError(t, err)
	assert.Contains(t, out, "EdgeShield")
}

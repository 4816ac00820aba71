package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJSON(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	if stdout.Len() == 0 {
		return nil, err
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), stdout.String())
	return out, err
}

func TestKeygenSignVerifyInspect(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "signing.pem")
	pub := filepath.Join(dir, "signing.pub.pem")

	info, err := runJSON(t, "keygen", "--alg", "rs256", "--private", priv, "--public", pub)
	require.NoError(t, err)
	assert.Equal(t, "RS256", info["alg"])

	_, err = runJSON(t, "keygen", "--private", priv)
	assert.Error(t, err, "refuses to overwrite without --force")

	signed, err := runJSON(t, "sign", "--private", priv,
		"--id", "SKU-42", "--name", "Widget", "--batch", "B1",
		"--metadata", `{"color":"red","size":3}`,
		"--compression", "zstd",
		"--base-url", "https://verify.example.com/v")
	require.NoError(t, err)
	raw := signed["token"].(string)
	assert.Equal(t, info["kid"], signed["key_id"])
	assert.Contains(t, signed["verification_url"], "https://verify.example.com/v?t=")

	verified, err := runJSON(t, "verify", "--public", pub, raw)
	require.NoError(t, err)
	assert.Equal(t, true, verified["valid"])
	payload := verified["payload"].(map[string]any)
	assert.Equal(t, "SKU-42", payload["id"])
	assert.Equal(t, "red", payload["metadata"].(map[string]any)["color"])

	inspected, err := runJSON(t, "inspect", raw)
	require.NoError(t, err)
	assert.Equal(t, "RS256", inspected["algorithm"])
	assert.Equal(t, false, inspected["expired"])
}

func TestVerifyRejectsForeignKeyWithExitCode(t *testing.T) {
	dir := t.TempDir()
	privA := filepath.Join(dir, "a.pem")
	pubB := filepath.Join(dir, "b.pub.pem")

	_, err := runJSON(t, "keygen", "--private", privA)
	require.NoError(t, err)
	_, err = runJSON(t, "keygen", "--private", filepath.Join(dir, "b.pem"), "--public", pubB)
	require.NoError(t, err)

	signed, err := runJSON(t, "sign", "--private", privA, "--id", "SKU-1", "--name", "Widget")
	require.NoError(t, err)

	out, err := runJSON(t, "verify", "--public", pubB, signed["token"].(string))
	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, "invalid_signature", out["reason"])
}

func TestVerifyReportsExpiry(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "k.pem")
	pub := filepath.Join(dir, "k.pub.pem")
	_, err := runJSON(t, "keygen", "--private", priv, "--public", pub)
	require.NoError(t, err)

	signed, err := runJSON(t, "sign", "--private", priv, "--id", "SKU-1", "--name", "Widget", "--expires", "1h")
	require.NoError(t, err)

	out, err := runJSON(t, "verify", "--public", pub, "--at", "2099-01-01T00:00:00Z", signed["token"].(string))
	require.Error(t, err)
	assert.Equal(t, "expired", out["reason"])
}

func TestInspectMalformedAndUnknownCommand(t *testing.T) {
	_, err := runJSON(t, "inspect", "!!!")
	assert.Error(t, err)

	_, err = runJSON(t, "frobnicate")
	assert.Error(t, err)

	_, err = runJSON(t, "sign", "--help")
	assert.NoError(t, err)
}

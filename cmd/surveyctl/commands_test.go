package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-survey/internal/adminauth"
	"github.com/Cypherspark/sms-survey/internal/parser"
	"github.com/Cypherspark/sms-survey/internal/webhook"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "", "parse", "8 7 9 Had a great day!")
	require.NoError(t, err)
	var res parser.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, parser.Result{Joy: 8, Achievement: 7, Meaning: 9, Influence: "Had a great day"}, res)

	_, err = run(t, "", "parse", "no numbers here")
	require.ErrorIs(t, err, parser.ErrParseFailure)
}

func TestSignCommand(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	body := `{"fromNumber":"+15551234567","text":"1 2 3"}`
	out, err := run(t, body, "sign", "--timestamp", "1700000000")
	require.NoError(t, err)
	require.Contains(t, out, "X-Timestamp: 1700000000")
	require.Contains(t, out, "X-Signature: "+webhook.Sign("s3cret", "1700000000", []byte(body)))
}

func TestAdminTokenCommand(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "jwt-secret")
	out, err := run(t, "", "admin-token", "--subject", "ops")
	require.NoError(t, err)
	claims, err := adminauth.Verify("jwt-secret", "sms-survey", strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "ops", claims.Subject)
}

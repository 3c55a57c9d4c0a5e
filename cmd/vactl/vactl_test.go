package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/auth"
)

func TestTokenCmd(t *testing.T) {
	a := &app{cfg: cliConfig{JWTSecret: "cli-secret"}}
	tenantID := uuid.New()
	userID := uuid.New()

	cmd := a.tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--tenant", tenantID.String(), "--user", userID.String()})
	require.NoError(t, cmd.Execute())

	claims, err := auth.ValidateToken(strings.TrimSpace(out.String()), "cli-secret")
	require.NoError(t, err)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, userID, claims.UserID)
}

func TestTokenCmd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		args   []string
	}{
		{name: "missing secret", secret: "", args: []string{"--tenant", uuid.NewString()}},
		{name: "bad tenant", secret: "s", args: []string{"--tenant", "nope"}},
		{name: "missing tenant", secret: "s", args: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &app{cfg: cliConfig{JWTSecret: tc.secret}}
			cmd := a.tokenCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tc.args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestNotificationsRetry_RequiresValidIDs(t *testing.T) {
	a := &app{}
	cmd := a.notificationsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"retry", "not-a-uuid", "--tenant", uuid.NewString()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid notification id")
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/domain/auth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SEQNUM_STORAGE_DRIVER", "memory")
	t.Setenv("SEQNUM_AUTH_JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "--user", "ops", "--company", "c-1", "--tz", "Asia/Tokyo", "--role", "sequence_manager")
	require.NoError(t, err)

	caller, err := auth.NewJWTService(auth.DefaultJWTConfig("cli-secret")).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", caller.UserID)
	assert.Equal(t, "c-1", caller.CompanyID)
	assert.Equal(t, "Asia/Tokyo", caller.Timezone)
	assert.Equal(t, []string{"sequence_manager"}, caller.Roles)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	t.Setenv("SEQNUM_STORAGE_DRIVER", "memory")

	_, err := run(t, "token", "--user", "ops")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestNextCommand_BadDate(t *testing.T) {
	t.Setenv("SEQNUM_STORAGE_DRIVER", "memory")

	_, err := run(t, "next", "inv", "--date", "15/07/2024")
	assert.Error(t, err)
}

func TestCommands_RejectMemoryDriver(t *testing.T) {
	t.Setenv("SEQNUM_STORAGE_DRIVER", "memory")

	for _, args := range [][]string{
		{"migrate"},
		{"create", "--code", "inv", "--name", "Invoices"},
		{"show"},
		{"next", "inv"},
		{"set-next", "0190f5a2-7c3e-7b1a-8d4f-112233445566", "5"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := run(t, args...)
			assert.ErrorContains(t, err, `needs storage.driver=postgres, got "memory"`)
		})
	}
}

func TestSetNextCommand_BadArgs(t *testing.T) {
	_, err := run(t, "set-next", "not-a-uuid", "5")
	assert.ErrorContains(t, err, "invalid id")

	_, err = run(t, "set-next", "0190f5a2-7c3e-7b1a-8d4f-112233445566", "five")
	assert.ErrorContains(t, err, "invalid value")
}

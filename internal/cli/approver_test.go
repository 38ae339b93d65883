package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/jpycli/internal/provider"
)

func newScriptedApprover(input string, assumeYes bool, password string) (*terminalApprover, *bytes.Buffer) {
	var out bytes.Buffer
	return &terminalApprover{
		in:        bufio.NewReader(strings.NewReader(input)),
		out:       &out,
		assumeYes: assumeYes,
		password:  func(string) (string, error) { return password, nil },
	}, &out
}

func TestTerminalApprover_Approve(t *testing.T) {
	req := provider.Request{Kind: provider.RequestSendTransaction, Title: "Send transaction", Details: []string{"To: " + bob.Hex()}}

	tests := []struct {
		name  string
		input string
		yes   bool
		want  bool
	}{
		{"yes", "y\n", false, true},
		{"full word", "YES\n", false, true},
		{"no", "n\n", false, false},
		{"empty defaults to no", "\n", false, false},
		{"eof declines", "", false, false},
		{"assume yes skips the question", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := newScriptedApprover(tt.input, tt.yes, "")
			got, err := a.Approve(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "To: "+bob.Hex())
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		a, _ := newScriptedApprover("y\n", false, "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.Approve(ctx, req)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTerminalApprover_Unlock(t *testing.T) {
	candidates := []common.Address{alice, bob}

	t.Run("single candidate asks only for password", func(t *testing.T) {
		a, out := newScriptedApprover("", false, "hunter22")
		account, password, ok, err := a.Unlock(context.Background(), candidates[:1])
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, alice, account)
		assert.Equal(t, "hunter22", password)
		assert.NotContains(t, out.String(), "Select account")
	})

	t.Run("choice by number", func(t *testing.T) {
		a, _ := newScriptedApprover("2\n", false, "hunter22")
		account, _, ok, err := a.Unlock(context.Background(), candidates)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, bob, account)
	})

	t.Run("out of range declines", func(t *testing.T) {
		a, _ := newScriptedApprover("9\n", false, "hunter22")
		_, _, ok, err := a.Unlock(context.Background(), candidates)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty password declines", func(t *testing.T) {
		a, _ := newScriptedApprover("", false, "")
		_, _, ok, err := a.Unlock(context.Background(), candidates[:1])
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("password read failure", func(t *testing.T) {
		a, _ := newScriptedApprover("", false, "")
		a.password = func(string) (string, error) { return "", errors.New("not a terminal") }
		_, _, _, err := a.Unlock(context.Background(), candidates[:1])
		assert.Error(t, err)
	})
}

func TestParseChoice(t *testing.T) {
	i, ok := parseChoice("", 3)
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = parseChoice("3", 3)
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	for _, bad := range []string{"0", "4", "two", "-1"} {
		_, ok := parseChoice(bad, 3)
		assert.False(t, ok, bad)
	}
}

func TestCheckNewPassword(t *testing.T) {
	assert.Error(t, checkNewPassword("short", ""))
	assert.NoError(t, checkNewPassword("longenough", ""))
	assert.NoError(t, checkNewPassword("longenough", "longenough"))
	assert.EqualError(t, checkNewPassword("longenough", "different"), "passwords do not match")
}

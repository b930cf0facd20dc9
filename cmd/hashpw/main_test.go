package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/dmitrijs2005/authcore/internal/server/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stdinWith(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRun_Piped(t *testing.T) {
	for _, algo := range []string{password.AlgoBcrypt, password.AlgoArgon2id} {
		t.Run(algo, func(t *testing.T) {
			var out, errOut bytes.Buffer
			err := run([]string{"-algo", algo, "-cost", "4"}, stdinWith(t, "somePassword\n"), &out, &errOut)
			require.NoError(t, err)

			hash := strings.TrimSpace(out.String())
			ok, err := password.Verify("somePassword", hash)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	var out, errOut bytes.Buffer

	err := run([]string{"-cost", "4"}, stdinWith(t, "\n"), &out, &errOut)
	assert.ErrorContains(t, err, "empty password")

	err = run([]string{"-algo", "md5"}, stdinWith(t, "x\n"), &out, &errOut)
	assert.Error(t, err)

	err = run([]string{"-nope"}, stdinWith(t, "x\n"), &out, &errOut)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRun_Terminal(t *testing.T) {
	origRead, origTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origTerm })
	isTerminal = func(int) bool { return true }

	answers := [][]byte{[]byte("somePassword"), []byte("somePassword")}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}

	var out, errOut bytes.Buffer
	require.NoError(t, run([]string{"-cost", "4"}, stdinWith(t, ""), &out, &errOut))
	assert.Contains(t, errOut.String(), "Password: ")
	ok, err := password.Verify("somePassword", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.True(t, ok)

	answers = [][]byte{[]byte("somePassword"), []byte("somePasswordAlt")}
	out.Reset()
	err = run([]string{"-cost", "4"}, stdinWith(t, ""), &out, &errOut)
	assert.ErrorContains(t, err, "do not match")
	assert.Empty(t, out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("tty gone") }
	err = run([]string{"-cost", "4"}, stdinWith(t, ""), &out, &errOut)
	assert.ErrorContains(t, err, "tty gone")
}

// File: cmd/reportcast/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/reportcast/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestRun(t *testing.T) {
	defer resetMocks()

	t.Run("success exits 0", func(t *testing.T) {
		execute = func(context.Context) error { return nil }
		var stderr bytes.Buffer
		assert.Equal(t, 0, run(context.Background(), &stderr))
		assert.Empty(t, stderr.String())
	})

	t.Run("any error exits 1", func(t *testing.T) {
		execute = func(context.Context) error { return errors.New("delivered 1/2 (soc_hub: code 19001)") }
		var stderr bytes.Buffer
		assert.Equal(t, 1, run(context.Background(), &stderr))
		assert.Contains(t, stderr.String(), "delivered 1/2")
	})

	t.Run("interrupted run exits 1", func(t *testing.T) {
		execute = func(context.Context) error { return context.Canceled }
		assert.Equal(t, 1, run(context.Background(), &bytes.Buffer{}))
	})
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	var exitCode int
	var written []byte
	osExit = func(code int) { exitCode = code }
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		written = data
		return nil
	}

	func() {
		defer handlePanic()
		panic("boom")
	}()

	assert.Equal(t, 2, exitCode)
	require.NotEmpty(t, written)
	assert.Contains(t, string(written), "panic: boom")
}

func TestHandlePanic_NoPanic(t *testing.T) {
	defer resetMocks()
	called := false
	osExit = func(int) { called = true }

	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}

package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()

		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == "start" {
				found = true
				break
			}
		}
		assert.True(t, found, "start command should exist")
	})
}

func TestIsRunning(t *testing.T) {
	t.Run("missing pid file", func(t *testing.T) {
		assert.False(t, isRunning(filepath.Join(t.TempDir(), "absent.pid")))
	})

	t.Run("garbage pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "tukang.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))

		assert.False(t, isRunning(pidFile))
	})

	t.Run("own pid", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "tukang.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		assert.True(t, isRunning(pidFile))
	})
}

// Package servicetest provides fake game servers for exercising the supervisor
// with real child processes.
package servicetest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpanel/internal/config"
)

const (
	// EchoServer behaves like a game server console: it echoes commands and exits on "stop".
	EchoServer = `#!/bin/sh
echo "Starting fake server $*"
echo "env ${MC_ENV:-unset}"
echo "warming up" 1>&2
while IFS= read -r line; do
  case "$line" in
    stop) echo "Stopping server"; exit 0 ;;
    *) echo "> $line" ;;
  esac
done
`
	// StubbornServer ignores the stop command and never exits on its own.
	StubbornServer = `#!/bin/sh
echo "ready"
while IFS= read -r line; do
  echo "ignoring $line"
done
sleep 1000
`
	// DeafServer never reads stdin, like a hung JVM.
	DeafServer = `#!/bin/sh
echo "ready"
exec sleep 1000
`
	CrashingServer = `#!/bin/sh
echo "boom"
exit 3
`
	PrintingServer = `#!/bin/sh
echo A
echo B
echo C
`
)

// Config writes script as the runtime binary next to an empty server.jar and
// returns a configuration that launches it.
func Config(t *testing.T, script string) *config.SupervisorConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake server scripts need /bin/sh")
	}

	dir := t.TempDir()
	runtimePath := filepath.Join(dir, "fake-java")
	require.NoError(t, os.WriteFile(runtimePath, []byte(script), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultArtifact), []byte("jar"), 0o644))

	cfg := config.DefaultSupervisorConfig()
	cfg.Process.Runtime = runtimePath
	cfg.Process.Directory = dir
	cfg.Process.GracePeriod = 5 * time.Second
	cfg.Console.PollInterval = 20 * time.Millisecond
	return cfg
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpanel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadProcessConfigDefaults(t *testing.T) {
	cfg, err := LoadProcessConfig(writeConfig(t, "process: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultRuntime, cfg.Process.Runtime)
	assert.Equal(t, DefaultArtifact, cfg.Process.Artifact)
	assert.Equal(t, DefaultMinMemoryMB, cfg.Process.MinMemoryMB)
	assert.Equal(t, DefaultMaxMemoryMB, cfg.Process.MaxMemoryMB)
	assert.Equal(t, DefaultStopCommand, cfg.Process.StopCommand)
	assert.Equal(t, DefaultGracePeriod, cfg.Process.GracePeriod)
	assert.Equal(t, DefaultEncoding, cfg.Console.Encoding)
	assert.Equal(t, DefaultPollInterval, cfg.Console.PollInterval)
	assert.False(t, cfg.Console.ClearOnStart)
	assert.Equal(t, *DefaultSupervisorConfig(), *cfg)
}

func TestLoadProcessConfigOverrides(t *testing.T) {
	cfg, err := LoadProcessConfig(writeConfig(t, `
process:
  runtime: /usr/lib/jvm/bin/java
  artifact: paper.jar
  min_memory_mb: 512
  max_memory_mb: 4096
  jvm_args: ["-XX:+UseG1GC"]
  directory: /srv/mc
  environment:
    TZ: UTC
  stop_command: end
  grace_period: 45s
console:
  encoding: windows-1252
  max_lines: 100
  clear_on_start: true
  poll_interval: 2s
`))
	require.NoError(t, err)

	assert.Equal(t, "/usr/lib/jvm/bin/java", cfg.Process.Runtime)
	assert.Equal(t, 45*time.Second, cfg.Process.GracePeriod)
	assert.Equal(t, "end", cfg.Process.StopCommand)
	assert.Equal(t, map[string]string{"TZ": "UTC"}, cfg.Process.Environment)
	assert.Equal(t, "windows-1252", cfg.Console.Encoding)
	assert.Equal(t, 100, cfg.Console.MaxLines)
	assert.True(t, cfg.Console.ClearOnStart)
	assert.Equal(t, 2*time.Second, cfg.Console.PollInterval)
	assert.Equal(t, filepath.Join("/srv/mc", "paper.jar"), cfg.Process.ArtifactPath())
}

func TestLoadProcessConfigErrors(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		errMsg   string
	}{
		{
			name:     "min above max",
			contents: "process:\n  min_memory_mb: 4096\n  max_memory_mb: 1024\n",
			errMsg:   "exceeds max_memory_mb",
		},
		{
			name:     "negative grace period",
			contents: "process:\n  grace_period: -1s\n",
			errMsg:   "grace_period",
		},
		{
			name:     "negative max lines",
			contents: "console:\n  max_lines: -3\n",
			errMsg:   "max_lines",
		},
		{
			name:     "malformed yaml",
			contents: "process: [\n",
			errMsg:   "parsing",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadProcessConfig(writeConfig(t, c.contents))
			require.ErrorContains(t, err, c.errMsg)
		})
	}

	_, err := LoadProcessConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestArgv(t *testing.T) {
	p := DefaultSupervisorConfig().Process
	assert.Equal(t, []string{"java", "-Xms1024M", "-Xmx2048M", "-jar", "server.jar", "nogui"}, p.Argv())

	p.GUI = true
	p.JVMArgs = []string{"-XX:+UseG1GC"}
	assert.Equal(t, []string{"java", "-Xms1024M", "-Xmx2048M", "-XX:+UseG1GC", "-jar", "server.jar"}, p.Argv())
}

func TestLoadConfigAddress(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "")
	assert.Equal(t, ":5000", LoadConfig().Server.Address)

	t.Setenv("SERVER_ADDRESS", "127.0.0.1:9000")
	assert.Equal(t, "127.0.0.1:9000", LoadConfig().Server.Address)
}

package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpanel/internal/config"
	"mcpanel/internal/console"
	"mcpanel/internal/service/servicetest"
)

var testLogger *zap.Logger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	testLogger = l
}

func newTestSupervisor(t *testing.T, script string, mutate func(cfg *config.SupervisorConfig)) (*Supervisor, *console.Queue) {
	t.Helper()
	cfg := servicetest.Config(t, script)
	if mutate != nil {
		mutate(cfg)
	}

	q := console.NewQueue(cfg.Console.MaxLines)
	s, err := NewSupervisor(cfg, q, WithLogger(testLogger))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.Stop(0)
	})
	return s, q
}

// collector accumulates drained lines, since draining is destructive.
type collector struct {
	q     *console.Queue
	lines []string
}

func (c *collector) waitFor(t *testing.T, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.lines = append(c.lines, c.q.DrainAvailable()...)
		for _, l := range c.lines {
			if l == line {
				return true
			}
		}
		return false
	}, 10*time.Second, 10*time.Millisecond, "never saw line %q, got %q", line, c.lines)
}

func TestStartStopCycle(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, nil)
	c := &collector{q: q}

	assert.Equal(t, StateOffline, s.Status())

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Start())
		assert.Equal(t, StateOnline, s.Status())
		assert.Equal(t, StateOnline, s.State())

		err := s.Start()
		require.ErrorIs(t, err, ErrAlreadyRunning)
		assert.Equal(t, StateOnline, s.Status())

		c.waitFor(t, "Starting fake server -Xms1024M -Xmx2048M -jar server.jar nogui")

		outcome, err := s.Stop(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, StopGraceful, outcome)
		assert.Equal(t, StateOffline, s.Status())
		assert.Equal(t, StateOffline, s.State())
		c.waitFor(t, "Stopping server")

		_, err = s.Stop(5 * time.Second)
		require.ErrorIs(t, err, ErrNotRunning)
	}

	info := s.Info()
	require.NotNil(t, info.ExitCode)
	assert.Equal(t, 0, *info.ExitCode)
}

func TestStderrIsMerged(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, nil)
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "warming up")
}

func TestEnvironment(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, func(cfg *config.SupervisorConfig) {
		cfg.Process.Environment = map[string]string{"MC_ENV": "hello"}
	})
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "env hello")
}

func TestSendCommand(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, nil)
	c := &collector{q: q}

	require.ErrorIs(t, s.SendCommand("list"), ErrNotRunning)

	require.NoError(t, s.Start())
	require.NoError(t, s.SendCommand("list"))
	c.waitFor(t, "> list")

	require.ErrorIs(t, s.SendCommand(""), ErrEmptyCommand)
	require.ErrorIs(t, s.SendCommand("   "), ErrEmptyCommand)

	require.NoError(t, s.SendCommand("say hi\r\n"))
	c.waitFor(t, "> say hi")

	for _, l := range c.lines {
		assert.NotEqual(t, "> ", l)
		assert.NotEqual(t, ">    ", l)
	}
	assert.Equal(t, StateOnline, s.Status())
}

func TestLaunchErrors(t *testing.T) {
	t.Run("missing artifact", func(t *testing.T) {
		s, _ := newTestSupervisor(t, servicetest.EchoServer, func(cfg *config.SupervisorConfig) {
			cfg.Process.Artifact = "missing.jar"
		})

		err := s.Start()
		var launchErr *LaunchError
		require.True(t, errors.As(err, &launchErr))
		assert.Equal(t, LaunchArtifactNotFound, launchErr.Reason)
		assert.Contains(t, err.Error(), "missing.jar")
		assert.Equal(t, StateOffline, s.Status())
		assert.Equal(t, StateOffline, s.State())
	})

	t.Run("missing runtime", func(t *testing.T) {
		s, _ := newTestSupervisor(t, servicetest.EchoServer, func(cfg *config.SupervisorConfig) {
			cfg.Process.Runtime = filepath.Join(t.TempDir(), "no-such-java")
		})

		err := s.Start()
		var launchErr *LaunchError
		require.True(t, errors.As(err, &launchErr))
		assert.Equal(t, LaunchOther, launchErr.Reason)
		assert.Equal(t, StateOffline, s.Status())
	})
}

func TestStopForcedKill(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.StubbornServer, nil)
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "ready")

	outcome, err := s.Stop(0)
	require.NoError(t, err)
	assert.Equal(t, StopForcedKill, outcome)
	assert.Equal(t, StateOffline, s.Status())

	// the exit of the killed child is recorded as a warning too, in either order
	warnings := s.Events().GetByLevel("warning", 10)
	assert.Condition(t, func() bool {
		for _, w := range warnings {
			if strings.Contains(w.Message, "did not stop") {
				return true
			}
		}
		return false
	}, "no kill warning in %v", warnings)
}

func TestStopChildNotReadingStdin(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.DeafServer, nil)
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "ready")

	stopped := make(chan StopOutcome, 1)
	start := time.Now()
	go func() {
		outcome, err := s.Stop(300 * time.Millisecond)
		assert.NoError(t, err)
		stopped <- outcome
	}()

	select {
	case outcome := <-stopped:
		assert.Equal(t, StopForcedKill, outcome)
		assert.Less(t, time.Since(start), 5*time.Second)
	case <-time.After(10 * time.Second):
		t.Fatal("Stop blocked writing to a child that never reads stdin")
	}
	assert.Equal(t, StateOffline, s.Status())
}

func TestSendCommandToChildNotReadingStdin(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.DeafServer, nil)
	s.commandTimeout = 200 * time.Millisecond
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "ready")

	// larger than any pipe buffer
	huge := strings.Repeat("x", 200000)

	err := s.SendCommand(huge)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr), "got %v", err)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Equal(t, StateOnline, s.Status())

	// a writer stuck on the pipe must not hold up Stop past its grace period
	s.commandTimeout = time.Minute
	go func() { _ = s.SendCommand(huge) }()
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan StopOutcome, 1)
	go func() {
		outcome, _ := s.Stop(300 * time.Millisecond)
		stopped <- outcome
	}()
	select {
	case outcome := <-stopped:
		assert.Equal(t, StopForcedKill, outcome)
	case <-time.After(10 * time.Second):
		t.Fatal("Stop blocked behind a stuck SendCommand")
	}
	assert.Equal(t, StateOffline, s.Status())
}

func TestWithCommandTimeout(t *testing.T) {
	s, err := NewSupervisor(config.DefaultSupervisorConfig(), console.NewQueue(0), WithCommandTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.commandTimeout)
}

func TestCrashDetectedLazily(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.CrashingServer, nil)
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "boom")

	require.Eventually(t, func() bool { return s.Status() == StateOffline }, 10*time.Second, 10*time.Millisecond)

	info := s.Info()
	assert.Equal(t, "Offline", info.Status)
	require.NotNil(t, info.ExitCode)
	assert.Equal(t, 3, *info.ExitCode)

	require.ErrorIs(t, s.SendCommand("list"), ErrNotRunning)

	// the stale handle is replaced by the next start
	require.NoError(t, s.Start())
}

func TestOutputOrderPreserved(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.PrintingServer, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return q.Len() == 3 }, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"A", "B", "C"}, q.DrainAvailable())
	assert.Empty(t, q.DrainAvailable())
}

func TestClearOnStart(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, func(cfg *config.SupervisorConfig) {
		cfg.Console.ClearOnStart = true
	})

	q.Push("stale line from last run")
	require.NoError(t, s.Start())
	assert.NotContains(t, q.DrainAvailable(), "stale line from last run")
}

func TestStaleLinesKeptByDefault(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, nil)

	q.Push("stale line from last run")
	require.NoError(t, s.Start())
	assert.Contains(t, q.DrainAvailable(), "stale line from last run")
}

func TestConcurrentStartLaunchesOnce(t *testing.T) {
	s, _ := newTestSupervisor(t, servicetest.EchoServer, nil)

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Start()
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyRunning)
	}
	assert.Equal(t, 1, started)
}

func TestRestart(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.EchoServer, nil)
	c := &collector{q: q}

	// restart from offline just starts
	_, err := s.Restart(5 * time.Second)
	require.NoError(t, err)
	firstPID := s.Info().Pid

	outcome, err := s.Restart(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, StopGraceful, outcome)
	assert.Equal(t, StateOnline, s.Status())
	assert.NotEqual(t, firstPID, s.Info().Pid)
	c.waitFor(t, "Stopping server")
}

func TestInfoWhileOnline(t *testing.T) {
	s, _ := newTestSupervisor(t, servicetest.EchoServer, nil)

	info := s.Info()
	assert.Equal(t, "Offline", info.Status)
	assert.Equal(t, notAvailable, info.Uptime)
	assert.Nil(t, info.ExitCode)

	require.NoError(t, s.Start())
	info = s.Info()
	assert.Equal(t, "Online", info.Status)
	assert.Equal(t, "Online", info.State)
	assert.Greater(t, info.Pid, 0)
	assert.Equal(t, "nogui", info.Command[len(info.Command)-1])
}

func TestShutdown(t *testing.T) {
	s, _ := newTestSupervisor(t, servicetest.EchoServer, nil)

	require.NoError(t, s.Shutdown())

	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown())
	assert.Equal(t, StateOffline, s.Status())
}

func TestStatusDoesNotBlockDuringStop(t *testing.T) {
	s, q := newTestSupervisor(t, servicetest.StubbornServer, nil)
	c := &collector{q: q}

	require.NoError(t, s.Start())
	c.waitFor(t, "ready")

	stopped := make(chan StopOutcome)
	go func() {
		outcome, _ := s.Stop(2 * time.Second)
		stopped <- outcome
	}()

	require.Eventually(t, func() bool { return s.State() == StateStopping }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOnline, s.Status())
	require.NoError(t, s.SendCommand("still here"))
	c.waitFor(t, "ignoring still here")

	assert.Equal(t, StopForcedKill, <-stopped)
	assert.Equal(t, StateOffline, s.Status())
}

func TestUnknownEncoding(t *testing.T) {
	cfg := config.DefaultSupervisorConfig()
	cfg.Console.Encoding = "klingon-8"
	_, err := NewSupervisor(cfg, console.NewQueue(0))
	require.Error(t, err)
}

package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"mcpanel/internal/config"
	"mcpanel/internal/console"
	"mcpanel/internal/models"
)

const (
	// killWait bounds how long we wait for the OS to reap a killed child.
	killWait = 10 * time.Second
	// relayFlushWait bounds how long Stop waits for trailing output to reach the queue.
	relayFlushWait = time.Second
	// defaultCommandTimeout bounds a console write to a child that stopped reading stdin.
	defaultCommandTimeout = 5 * time.Second
)

type State int

const (
	StateOffline State = iota
	StateStarting
	StateOnline
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateOnline:
		return "Online"
	case StateStopping:
		return "Stopping"
	default:
		return "Offline"
	}
}

// StopOutcome tells a caller of Stop whether the child honored the stop command.
type StopOutcome int

const (
	StopGraceful StopOutcome = iota
	// StopForcedKill means the grace period elapsed and the child was killed.
	// The server is offline, but it did not shut down cleanly.
	StopForcedKill
)

func (o StopOutcome) String() string {
	if o == StopForcedKill {
		return "forced-kill"
	}
	return "graceful"
}

type managedProcess struct {
	cmd       *exec.Cmd
	pid       int
	startTime time.Time

	// writeSem holds one token per writer so acquiring it can time out.
	writeSem chan struct{}
	stdin    *os.File

	// exited is closed once cmd.Wait has returned; exitCode and waitErr are set before.
	exited   chan struct{}
	exitCode int
	waitErr  error

	relayDone <-chan struct{}
}

func (p *managedProcess) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// writeLine writes line to stdin, giving up with os.ErrDeadlineExceeded once deadline
// passes, whether it is still queued behind another writer or blocked on a full pipe.
func (p *managedProcess) writeLine(line string, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case p.writeSem <- struct{}{}:
	case <-timer.C:
		return os.ErrDeadlineExceeded
	}
	defer func() { <-p.writeSem }()

	if err := p.stdin.SetWriteDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return err
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *managedProcess) wait() {
	p.waitErr = p.cmd.Wait()
	p.stdin.Close()
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	close(p.exited)
}

// Supervisor owns the lifecycle of at most one game server process and feeds
// its combined output into a console queue.
type Supervisor struct {
	cfg      config.ProcessConfig
	console  config.ConsoleConfig
	queue    *console.Queue
	decoding encoding.Encoding
	log      *zap.SugaredLogger
	events   *EventLog

	commandTimeout time.Duration

	// opMu serializes Start, Stop and Restart.
	opMu sync.Mutex

	// mu guards the fields below. It is never held while waiting on the child.
	mu           sync.RWMutex
	proc         *managedProcess
	state        State
	lastExitCode *int
}

type Option func(s *Supervisor)

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		s.log = l.Named("supervisor").Sugar()
	}
}

// WithCommandTimeout bounds how long SendCommand waits for the child to accept a line.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.commandTimeout = d
	}
}

func WithEventLog(el *EventLog) Option {
	return func(s *Supervisor) {
		s.events = el
	}
}

func NewSupervisor(cfg *config.SupervisorConfig, queue *console.Queue, opts ...Option) (*Supervisor, error) {
	dec, err := console.LookupEncoding(cfg.Console.Encoding)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:      cfg.Process,
		console:  cfg.Console,
		queue:    queue,
		decoding: dec,
		log:      zap.NewNop().Sugar(),
		events:   NewEventLog(defaultEventLogSize),

		commandTimeout: defaultCommandTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Supervisor) Events() *EventLog { return s.events }

func (s *Supervisor) GracePeriod() time.Duration { return s.cfg.GracePeriod }

// PollInterval is how often console clients should drain the queue.
func (s *Supervisor) PollInterval() time.Duration { return s.console.PollInterval }

func (s *Supervisor) current() *managedProcess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// discard drops the handle if it is still the current one and returns the supervisor to Offline.
func (s *Supervisor) discard(p *managedProcess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != p {
		return
	}
	if !p.alive() {
		code := p.exitCode
		s.lastExitCode = &code
	}
	s.proc = nil
	s.state = StateOffline
}

// Status reports Online only while a child exists and has not exited.
// A crashed child is first observed here as Offline.
func (s *Supervisor) Status() State {
	if p := s.current(); p != nil && p.alive() {
		return StateOnline
	}
	return StateOffline
}

// State is like Status but also reports the Starting and Stopping transitions.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proc != nil && !s.proc.alive() {
		return StateOffline
	}
	return s.state
}

func (s *Supervisor) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked()
}

func (s *Supervisor) startLocked() error {
	if p := s.current(); p != nil {
		if p.alive() {
			return ErrAlreadyRunning
		}
		s.log.Infow("discarding exited server", "PID", p.pid, "ExitCode", p.exitCode)
		s.discard(p)
	}

	s.setState(StateStarting)
	p, err := s.launch()
	if err != nil {
		s.setState(StateOffline)
		s.log.Errorw("failed to start server", "Error", err)
		s.events.Add("error", fmt.Sprintf("Failed to start server: %v", err))
		return err
	}

	s.mu.Lock()
	s.proc = p
	s.state = StateOnline
	s.mu.Unlock()

	s.log.Infow("server started", "PID", p.pid, "Command", s.cfg.Argv())
	s.events.Add("info", fmt.Sprintf("Server started with PID %d", p.pid))
	go s.watch(p)
	return nil
}

func (s *Supervisor) launch() (*managedProcess, error) {
	artifact := s.cfg.ArtifactPath()
	if _, err := os.Stat(artifact); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LaunchError{Reason: LaunchArtifactNotFound, Path: artifact, Err: err}
		}
		return nil, &LaunchError{Reason: LaunchOther, Path: artifact, Err: err}
	}

	argv := s.cfg.Argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.Directory
	if len(s.cfg.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.cfg.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	setupProcessGroup(cmd)

	// an os.Pipe rather than cmd.StdinPipe so writes can carry a deadline
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Reason: LaunchOther, Err: fmt.Errorf("creating stdin pipe: %w", err)}
	}
	cmd.Stdin = inR

	// stdout and stderr share one pipe so the console sees them interleaved as written.
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, &LaunchError{Reason: LaunchOther, Err: fmt.Errorf("creating output pipe: %w", err)}
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if s.console.ClearOnStart {
		s.queue.Clear()
	}

	if err := cmd.Start(); err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return nil, &LaunchError{Reason: LaunchOther, Err: err}
	}
	inR.Close()
	outW.Close()

	p := &managedProcess{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startTime: time.Now(),
		stdin:     inW,
		writeSem:  make(chan struct{}, 1),
		exited:    make(chan struct{}),
	}
	p.relayDone = console.Relay(outR, s.queue,
		console.WithRelayLogger(s.log.Named("relay")),
		console.WithEncoding(s.decoding),
	)
	go p.wait()
	return p, nil
}

// watch records the exit of p. It never touches the handle; a crash is only
// reflected in Status, and the handle is dropped by the next Start or Stop.
func (s *Supervisor) watch(p *managedProcess) {
	<-p.exited
	if p.waitErr != nil {
		s.log.Infow("server exited", "PID", p.pid, "ExitCode", p.exitCode, "Error", p.waitErr)
		s.events.Add("warning", fmt.Sprintf("Server (PID %d) exited with code %d", p.pid, p.exitCode))
		return
	}
	s.log.Infow("server exited", "PID", p.pid, "ExitCode", p.exitCode)
	s.events.Add("info", fmt.Sprintf("Server (PID %d) exited normally", p.pid))
}

// Stop writes the stop command to the server and waits up to grace for it to exit,
// killing it once the grace period has elapsed. A child that never drains stdin is
// killed at the same deadline. The handle is always discarded.
func (s *Supervisor) Stop(grace time.Duration) (StopOutcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(grace)
}

func (s *Supervisor) stopLocked(grace time.Duration) (StopOutcome, error) {
	p := s.current()
	if p == nil {
		return StopGraceful, ErrNotRunning
	}
	if !p.alive() {
		s.discard(p)
		return StopGraceful, ErrNotRunning
	}

	s.setState(StateStopping)
	defer s.discard(p)

	// the grace period covers delivering the stop command as well as the exit
	deadline := time.Now().Add(grace)

	s.log.Infow("sending stop command", "PID", p.pid, "Command", s.cfg.StopCommand, "GracePeriod", grace)
	s.events.Add("info", fmt.Sprintf("Sending %q to server (PID %d)", s.cfg.StopCommand, p.pid))
	err := p.writeLine(s.cfg.StopCommand, deadline)
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.log.Warnw("server is not reading stdin", "PID", p.pid)
	case err != nil:
		s.log.Warnw("failed to send stop command, killing", "PID", p.pid, "Error", err)
		s.kill(p)
		return StopGraceful, &WriteError{Err: err}
	default:
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-p.exited:
			s.flushRelay(p)
			s.events.Add("info", fmt.Sprintf("Server (PID %d) stopped", p.pid))
			return StopGraceful, nil
		case <-timer.C:
		}
	}

	s.log.Warnw("server did not stop in time, killing", "PID", p.pid, "GracePeriod", grace)
	s.events.Add("warning", fmt.Sprintf("Server (PID %d) did not stop within %s, killing", p.pid, grace))
	s.kill(p)
	return StopForcedKill, nil
}

func (s *Supervisor) kill(p *managedProcess) {
	if err := killProcessGroup(p.cmd); err != nil {
		s.log.Warnw("kill failed", "PID", p.pid, "Error", err)
	}
	select {
	case <-p.exited:
		s.flushRelay(p)
	case <-time.After(killWait):
		s.log.Errorw("server still not reaped after kill, abandoning handle", "PID", p.pid)
	}
}

func (s *Supervisor) flushRelay(p *managedProcess) {
	select {
	case <-p.relayDone:
	case <-time.After(relayFlushWait):
		s.log.Debugw("console relay still open after exit", "PID", p.pid)
	}
}

// Restart stops the server if it is running and starts it again.
func (s *Supervisor) Restart(grace time.Duration) (StopOutcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	outcome, err := s.stopLocked(grace)
	if err != nil && !errors.Is(err, ErrNotRunning) {
		return outcome, err
	}
	return outcome, s.startLocked()
}

// SendCommand writes text as one line to the server's stdin. A write the child does not
// accept within the command timeout fails with a *WriteError.
func (s *Supervisor) SendCommand(text string) error {
	p := s.current()
	if p == nil || !p.alive() {
		return ErrNotRunning
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyCommand
	}

	line := strings.TrimRight(text, "\r\n")
	if err := p.writeLine(line, time.Now().Add(s.commandTimeout)); err != nil {
		s.log.Warnw("failed to send command", "PID", p.pid, "Error", err)
		return &WriteError{Err: err}
	}
	s.log.Debugw("sent command", "PID", p.pid, "Command", line)
	return nil
}

// Shutdown stops a running server with the configured grace period. It is a no-op
// when the server is offline.
func (s *Supervisor) Shutdown() error {
	outcome, err := s.Stop(s.cfg.GracePeriod)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Infow("server shut down", "Outcome", outcome)
	return nil
}

func (s *Supervisor) Info() models.ServerStatus {
	s.mu.RLock()
	p := s.proc
	state := s.state
	lastExit := s.lastExitCode
	s.mu.RUnlock()

	info := models.ServerStatus{
		Status:       StateOffline.String(),
		Uptime:       notAvailable,
		Memory:       notAvailable,
		CPU:          notAvailable,
		PendingLines: s.queue.Len(),
		DroppedLines: s.queue.Dropped(),
		Command:      s.cfg.Argv(),
	}

	switch {
	case p != nil && p.alive():
		info.Status = StateOnline.String()
		info.State = state.String()
		info.Pid = p.pid
		info.Uptime = formatDuration(time.Since(p.startTime))
		info.Memory = processMemory(p.pid)
		info.CPU = processCPU(p.pid)
	case p != nil:
		code := p.exitCode
		info.State = StateOffline.String()
		info.ExitCode = &code
	default:
		info.State = state.String()
		info.ExitCode = lastExit
	}
	return info
}

package adb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// defaultServerPort is the port adb clients use when none is given.
const defaultServerPort = 5037

// outputBufferSize is the buffer size for capturing server stdout/stderr.
const outputBufferSize = 4096

// ServerStatus is the state of a managed adb server.
type ServerStatus string

const (
	ServerStopped  ServerStatus = "stopped"
	ServerStarting ServerStatus = "starting"
	ServerRunning  ServerStatus = "running"
	ServerFailed   ServerStatus = "failed"
)

// ServerConfig configures a managed adb server.
type ServerConfig struct {
	// Binary is the adb executable.
	Binary string

	// Port is the server port; 0 uses 5037.
	Port int

	// RestartDelay is the pause before restarting a server that exited.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheck, when set, is run every HealthCheckInterval; three
	// consecutive failures kill the server so it is restarted.
	HealthCheck         func(ctx context.Context) error
	HealthCheckInterval time.Duration
}

// Server runs "adb nodaemon server" in the foreground and restarts it
// when it exits unexpectedly.
type Server struct {
	config ServerConfig
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        ServerStatus
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewServer creates a stopped server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = defaultServerPort
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 2 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Server{
		config: cfg,
		logger: noopLogger{},
		status: ServerStopped,
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

func (s *Server) args() []string {
	return []string{"-P", strconv.Itoa(s.config.Port), "nodaemon", "server"}
}

// Start launches the server and monitors it until ctx is done or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == ServerRunning || s.status == ServerStarting {
		s.mu.Unlock()
		return ErrServerRunning
	}
	s.status = ServerStarting
	s.stopRequested = false
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.startProcess(ctx); err != nil {
		s.mu.Lock()
		s.status = ServerFailed
		s.lastError = err
		s.mu.Unlock()
		close(s.done)
		return err
	}

	go s.monitor(ctx)
	return nil
}

func (s *Server) startProcess(ctx context.Context) error {
	s.logger.Info("starting adb server", "binary", s.config.Binary, "port", s.config.Port)

	cmd := exec.CommandContext(ctx, s.config.Binary, s.args()...) //nolint:gosec // binary path comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = ServerRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	go s.captureOutput("stdout", stdout)
	go s.captureOutput("stderr", stderr)

	s.logger.Info("adb server started", "pid", cmd.Process.Pid)
	return nil
}

func (s *Server) captureOutput(stream string, r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.logger.Debug("adb server output", "stream", stream, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// wait blocks until the process exits or the health check fails three
// times in a row, in which case the process is killed.
func (s *Server) wait(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if s.config.HealthCheck == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	const maxFailures = 3

	for {
		select {
		case err := <-exitCh:
			return err
		case <-ctx.Done():
			return <-exitCh
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.config.HealthCheck(checkCtx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			s.logger.Warn("adb server health check failed", "error", err, "consecutive_failures", failures)
			if failures < maxFailures {
				continue
			}
			s.logger.Error("adb server unresponsive, killing", "failures", failures)
			if cmd.Process != nil {
				cmd.Process.Kill() //nolint:errcheck // best effort; exit is observed below
			}
			if exitErr := <-exitCh; exitErr != nil {
				return fmt.Errorf("killed after failed health checks: %w", exitErr)
			}
			return fmt.Errorf("killed after %d failed health checks", failures)
		}
	}
}

func (s *Server) monitor(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()

		err := s.wait(ctx, cmd)

		s.mu.Lock()
		stopRequested := s.stopRequested
		s.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			s.logger.Info("adb server stopped")
			s.mu.Lock()
			s.status = ServerStopped
			s.mu.Unlock()
			return
		}

		s.logger.Warn("adb server exited unexpectedly", "error", err)

		s.mu.Lock()
		s.lastError = err
		s.status = ServerFailed
		attempt := s.restartCount + 1
		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.mu.Unlock()
			s.logger.Error("adb server restart limit reached", "restarts", attempt-1)
			return
		}
		s.restartCount = attempt
		s.mu.Unlock()

		s.logger.Info("restarting adb server", "attempt", attempt, "delay", s.config.RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.RestartDelay):
		}

		s.mu.RLock()
		stopRequested = s.stopRequested
		s.mu.RUnlock()
		if stopRequested {
			s.mu.Lock()
			s.status = ServerStopped
			s.mu.Unlock()
			return
		}

		if err := s.startProcess(ctx); err != nil {
			s.logger.Error("failed to restart adb server", "error", err)
			s.mu.Lock()
			s.lastError = err
			s.mu.Unlock()
			return
		}
	}
}

// Stop sends SIGTERM to the server's process group, waits up to
// GracefulTimeout, then sends SIGKILL.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopRequested = true
	cmd := s.cmd
	done := s.done
	running := s.status == ServerRunning || s.status == ServerStarting
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping adb server", "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.config.GracefulTimeout):
		s.logger.Warn("adb server did not exit, sending SIGKILL", "timeout", s.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing adb server: %w", err)
	}
	<-done
	return nil
}

// Status returns the server status.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RestartCount returns how many times the server has been restarted.
func (s *Server) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// LastError returns the error that ended the previous server process.
func (s *Server) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Uptime returns how long the current process has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != ServerRunning {
		return 0
	}
	return time.Since(s.startTime)
}

package service

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"codeops/internal/domain"
)

// readyPollInterval is how often WaitReady probes the server port.
const readyPollInterval = 250 * time.Millisecond

// Handle identifies one spawned server process. It is owned by the
// supervisor and the manager; callers interact through ServerInfo snapshots.
type Handle struct {
	PID       int
	Host      string
	Port      int
	Token     string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}

	// waitErr is written once by the reaper goroutine before done closes.
	waitErr error
}

// URL returns the base address clients connect to.
func (h *Handle) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(h.Host, strconv.Itoa(h.Port)))
}

// Exited reports whether the process has terminated, without blocking.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ProcessSupervisor spawns and reaps server processes. Exactly one reaper
// goroutine runs per handle, so Wait is never called twice on a process.
type ProcessSupervisor struct {
	logger *zap.Logger
}

// NewSupervisor creates a process supervisor.
func NewSupervisor(logger *zap.Logger) *ProcessSupervisor {
	return &ProcessSupervisor{logger: logger}
}

// Start spawns the server binary from an install with the given options. It
// fails fast when the port is already bound, before paying for a spawn.
func (s *ProcessSupervisor) Start(installed *domain.InstalledServer, opts SpawnOptions) (*Handle, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	probe, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &domain.SuperviseError{
			Kind: domain.SupervisePortInUse,
			Err:  fmt.Errorf("port %d on %s is not available: %w", opts.Port, opts.Host, err),
		}
	}
	if err := probe.Close(); err != nil {
		return nil, &domain.SuperviseError{Kind: domain.SuperviseSpawnFailed, Err: err}
	}

	args := buildArgs(opts)
	cmd := exec.Command(installed.Binary(), args...)
	cmd.Dir = installed.Path

	// Child output flows into the structured log rather than our terminal.
	stdout := &zapio.Writer{Log: s.logger.Named("server"), Level: zap.InfoLevel}
	stderr := &zapio.Writer{Log: s.logger.Named("server"), Level: zap.WarnLevel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logger.Info("Starting server process",
		zap.String("binary", installed.Binary()),
		zap.Strings("args", args))

	if err := cmd.Start(); err != nil {
		return nil, &domain.SuperviseError{Kind: domain.SuperviseSpawnFailed, Err: err}
	}

	h := &Handle{
		PID:       cmd.Process.Pid,
		Host:      opts.Host,
		Port:      opts.Port,
		Token:     opts.ConnectionToken,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	go func() {
		h.waitErr = cmd.Wait()
		_ = stdout.Close()
		_ = stderr.Close()
		close(h.done)
		if h.waitErr != nil {
			s.logger.Warn("Server process exited",
				zap.Int("pid", h.PID), zap.Error(h.waitErr))
		} else {
			s.logger.Info("Server process exited", zap.Int("pid", h.PID))
		}
	}()

	return h, nil
}

// WaitReady blocks until the server accepts TCP connections, the process
// exits, the timeout elapses, or ctx is cancelled.
func (s *ProcessSupervisor) WaitReady(ctx context.Context, h *Handle, timeout time.Duration) error {
	addr := net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
	deadline := time.After(timeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &domain.SuperviseError{Kind: domain.SuperviseTimeout, Err: ctx.Err()}
		case <-h.done:
			return &domain.SuperviseError{
				Kind: domain.SuperviseSpawnFailed,
				Err:  fmt.Errorf("server process exited before becoming ready: %w", exitReason(h)),
			}
		case <-deadline:
			return &domain.SuperviseError{
				Kind: domain.SuperviseTimeout,
				Err:  fmt.Errorf("server did not accept connections on %s within %s", addr, timeout),
			}
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, readyPollInterval)
			if err == nil {
				_ = conn.Close()
				s.logger.Info("Server is ready", zap.String("addr", addr))
				return nil
			}
		}
	}
}

// Stop terminates the process: a polite termination signal first, then a
// hard kill if it is still alive after gracefulWait. Always reaps.
func (s *ProcessSupervisor) Stop(h *Handle, gracefulWait time.Duration) error {
	if h.Exited() {
		return nil
	}

	s.logger.Info("Stopping server process", zap.Int("pid", h.PID))
	if err := terminate(h.cmd); err != nil {
		// The process may have exited between the check and the signal.
		if h.Exited() {
			return nil
		}
		return &domain.SuperviseError{Kind: domain.SuperviseSpawnFailed, Err: err}
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(gracefulWait):
	}

	s.logger.Warn("Server ignored termination signal, killing",
		zap.Int("pid", h.PID))
	if err := h.cmd.Process.Kill(); err != nil && !h.Exited() {
		return &domain.SuperviseError{Kind: domain.SuperviseSpawnFailed, Err: err}
	}
	<-h.done
	return nil
}

// IsRunning reports whether the handle's process is still alive.
func (s *ProcessSupervisor) IsRunning(h *Handle) bool {
	return h != nil && !h.Exited()
}

func exitReason(h *Handle) error {
	if h.waitErr != nil {
		return h.waitErr
	}
	return fmt.Errorf("exit status 0")
}

// buildArgs converts spawn options into the server's command line.
func buildArgs(opts SpawnOptions) []string {
	args := []string{
		"--port", strconv.Itoa(opts.Port),
		"--host", opts.Host,
	}
	if opts.DisableTelemetry {
		args = append(args, "--disable-telemetry")
	}
	if opts.ConnectionToken == "" {
		args = append(args, "--without-connection-token")
	} else {
		args = append(args, "--connection-token", opts.ConnectionToken)
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

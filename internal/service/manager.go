package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codeops/internal/config"
	"codeops/internal/domain"
)

// Manager drives the server lifecycle: ensure (resolve, download, extract),
// start, stop, restart. Lifecycle operations are serialized by opMu so two
// concurrent Starts can never spawn two processes; reads take only the
// snapshot lock and never block behind a download.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	resolver   VersionResolver
	downloader Downloader
	extractor  Extractor
	store      Store
	supervisor Supervisor
	notifier   Notifier

	opMu sync.Mutex

	mu         sync.RWMutex
	state      domain.ServerState
	resolved   *domain.ResolvedVersion
	installed  *domain.InstalledServer
	handle     *Handle
	token      string
	failReason string

	closeOnce sync.Once
}

// Deps lets tests substitute individual collaborators.
type Deps struct {
	Resolver   VersionResolver
	Downloader Downloader
	Extractor  Extractor
	Store      Store
	Supervisor Supervisor
	Notifier   Notifier
}

// NewManager wires a manager with the production collaborators.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	platform, err := domain.DetectPlatform()
	if err != nil {
		return nil, err
	}
	return NewManagerWith(cfg, logger, Deps{
		Resolver:   NewResolver(cfg, logger, platform),
		Downloader: NewDownloader(cfg, logger),
		Extractor:  NewExtractor(logger),
		Store:      NewStore(cfg, logger),
		Supervisor: NewSupervisor(logger),
		Notifier:   NewNotifier(cfg, logger),
	}), nil
}

// NewManagerWith wires a manager from explicit collaborators.
func NewManagerWith(cfg *config.Config, logger *zap.Logger, deps Deps) *Manager {
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		resolver:   deps.Resolver,
		downloader: deps.Downloader,
		extractor:  deps.Extractor,
		store:      deps.Store,
		supervisor: deps.Supervisor,
		notifier:   deps.Notifier,
		state:      domain.StateNotInstalled,
	}
}

// EnsureServer makes a usable install exist for the configured version:
// resolve, download, extract, validate. Idempotent; a cached install
// short-circuits the network entirely.
func (m *Manager) EnsureServer(ctx context.Context) (*domain.InstalledServer, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	installed, err := m.ensureLocked(ctx)
	if err != nil {
		m.ensureFailLocked(err)
		return nil, domain.NewOpError("ensure", err)
	}
	return installed, nil
}

// ensureFailLocked records an ensure failure. The machine only moves to
// failed when no later lifecycle state exists: a running or stopped server
// is left untouched, so a transient resolution error can never strand a
// live process behind a cleared handle.
func (m *Manager) ensureFailLocked(err error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	switch state {
	case domain.StateNotInstalled, domain.StateInstalled, domain.StateFailed:
		m.failLocked("ensure", err)
	default:
		m.logger.Warn("Ensure failed, keeping current server state",
			zap.String("state", string(state)), zap.Error(err))
	}
}

func (m *Manager) ensureLocked(ctx context.Context) (*domain.InstalledServer, error) {
	resolved, err := m.resolver.Resolve(ctx, m.cfg.Resolver.APIVersion)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.resolved = resolved
	m.mu.Unlock()

	if err := m.store.EnsureRoot(); err != nil {
		return nil, err
	}

	installDir := m.store.InstallDir(resolved.Commit, resolved.Platform)
	if m.store.IsInstalled(resolved.Commit, resolved.Platform) {
		m.logger.Debug("Server already installed",
			zap.String("commit", resolved.Commit), zap.String("path", installDir))
		return m.adoptInstall(resolved, installDir), nil
	}

	archivePath := m.store.ArchivePath(resolved.Commit, resolved.Platform)
	if err := m.downloader.Fetch(ctx, resolved.DownloadURL, archivePath); err != nil {
		return nil, err
	}

	if _, err := m.extractor.Extract(archivePath, resolved.Platform, installDir); err != nil {
		return nil, err
	}

	return m.adoptInstall(resolved, installDir), nil
}

func (m *Manager) adoptInstall(resolved *domain.ResolvedVersion, installDir string) *domain.InstalledServer {
	installed := &domain.InstalledServer{
		Commit:   resolved.Commit,
		Platform: resolved.Platform,
		Path:     installDir,
	}

	m.mu.Lock()
	m.installed = installed
	if m.state == domain.StateNotInstalled || m.state == domain.StateFailed {
		m.state = domain.StateInstalled
		m.failReason = ""
	}
	m.mu.Unlock()
	return installed
}

// Start spawns the server and waits for it to accept connections. Starting
// an already running (or starting) server is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case domain.StateRunning, domain.StateStarting:
		m.mu.Unlock()
		return nil
	case domain.StateInstalled, domain.StateStopped, domain.StateFailed:
	default:
		state := m.state
		m.mu.Unlock()
		return domain.NewOpError("start", &domain.InvalidStateError{
			Op:       "start",
			Expected: []domain.ServerState{domain.StateInstalled, domain.StateStopped, domain.StateFailed},
			Actual:   state,
		})
	}
	if m.installed == nil {
		state := m.state
		m.mu.Unlock()
		return domain.NewOpError("start", &domain.InvalidStateError{
			Op:       "start",
			Expected: []domain.ServerState{domain.StateInstalled, domain.StateStopped},
			Actual:   state,
		})
	}
	installed := m.installed
	m.state = domain.StateStarting
	m.failReason = ""
	m.token = m.newToken()
	token := m.token
	m.mu.Unlock()

	handle, err := m.supervisor.Start(installed, SpawnOptions{
		Port:             m.cfg.Server.Port,
		Host:             m.cfg.Server.Host,
		DisableTelemetry: m.cfg.Server.DisableTelemetry,
		ConnectionToken:  token,
		ExtraArgs:        m.cfg.Server.ExtraArgs,
	})
	if err != nil {
		m.failLocked("start", err)
		return domain.NewOpError("start", err)
	}

	timeout := time.Duration(m.cfg.Server.StartupTimeout) * time.Second
	if err := m.supervisor.WaitReady(ctx, handle, timeout); err != nil {
		_ = m.supervisor.Stop(handle, time.Duration(m.cfg.Server.GracefulStopWait)*time.Second)
		m.failLocked("start", err)
		return domain.NewOpError("start", err)
	}

	m.mu.Lock()
	m.handle = handle
	m.state = domain.StateRunning
	m.mu.Unlock()

	go m.watch(handle)

	m.logger.Info("Server running",
		zap.Int("pid", handle.PID), zap.String("url", handle.URL()))
	m.notifier.Notify(context.WithoutCancel(ctx), EventReady, m.Info())
	return nil
}

// Stop shuts the server down. Stopping a server that already stopped or
// failed is a no-op; stopping one that was never started is an error.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case domain.StateStopped, domain.StateFailed:
		m.mu.Unlock()
		return nil
	case domain.StateRunning, domain.StateStarting:
	default:
		state := m.state
		m.mu.Unlock()
		return domain.NewOpError("stop", &domain.InvalidStateError{
			Op:       "stop",
			Expected: []domain.ServerState{domain.StateRunning, domain.StateStarting},
			Actual:   state,
		})
	}
	handle := m.handle
	m.state = domain.StateStopping
	m.mu.Unlock()

	if handle != nil {
		wait := time.Duration(m.cfg.Server.GracefulStopWait) * time.Second
		if err := m.supervisor.Stop(handle, wait); err != nil {
			m.failLocked("stop", err)
			return domain.NewOpError("stop", err)
		}
	}

	m.mu.Lock()
	m.handle = nil
	m.state = domain.StateStopped
	m.mu.Unlock()

	m.logger.Info("Server stopped")
	m.notifier.Notify(context.WithoutCancel(ctx), EventStopped, m.Info())
	return nil
}

// Restart stops the running server and starts it again with the same
// configuration. Valid only while the server is running or starting.
func (m *Manager) Restart(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state != domain.StateRunning && state != domain.StateStarting {
		return domain.NewOpError("restart", &domain.InvalidStateError{
			Op:       "restart",
			Expected: []domain.ServerState{domain.StateRunning, domain.StateStarting},
			Actual:   state,
		})
	}
	if err := m.stopLocked(ctx); err != nil {
		return err
	}
	return m.startLocked(ctx)
}

// failLocked records an operation failure and moves the machine to failed.
// Called with opMu held.
func (m *Manager) failLocked(op string, err error) {
	m.mu.Lock()
	m.handle = nil
	m.state = domain.StateFailed
	m.failReason = fmt.Sprintf("%s: %v", op, err)
	m.mu.Unlock()

	m.logger.Error("Lifecycle operation failed",
		zap.String("op", op), zap.Error(err))
	m.notifier.Notify(context.Background(), EventFailed, m.Info())
}

// watch reaps unexpected exits: a process that dies while the manager still
// believes it is running moves the state machine to failed.
func (m *Manager) watch(handle *Handle) {
	<-handle.done

	m.mu.Lock()
	if m.handle != handle || m.state != domain.StateRunning {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.state = domain.StateFailed
	m.failReason = fmt.Sprintf("server process exited unexpectedly: %v", exitReason(handle))
	m.mu.Unlock()

	m.logger.Error("Server process died", zap.Error(handle.waitErr))
	m.notifier.Notify(context.Background(), EventFailed, m.Info())
}

// IsRunning reports whether the server process is up right now.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	handle := m.handle
	state := m.state
	m.mu.RUnlock()
	return state == domain.StateRunning && m.supervisor.IsRunning(handle)
}

// State returns the current lifecycle state.
func (m *Manager) State() domain.ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// URL returns the server base address. Valid whether or not the server is
// running; clients combine it with State to decide whether to connect.
func (m *Manager) URL() string {
	m.mu.RLock()
	handle := m.handle
	m.mu.RUnlock()
	if handle != nil {
		return handle.URL()
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(m.cfg.Server.Host, strconv.Itoa(m.cfg.Server.Port)))
}

// Info returns a serializable snapshot of the manager's view of the server.
func (m *Manager) Info() domain.ServerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := domain.ServerInfo{
		State:      m.state,
		URL:        fmt.Sprintf("http://%s", net.JoinHostPort(m.cfg.Server.Host, strconv.Itoa(m.cfg.Server.Port))),
		FailReason: m.failReason,
	}
	if m.resolved != nil {
		info.APIVersion = m.resolved.APIVersion
		info.Commit = m.resolved.Commit
		info.Platform = m.resolved.Platform.Key()
	}
	if m.handle != nil {
		info.URL = m.handle.URL()
		info.PID = m.handle.PID
		startedAt := m.handle.StartedAt
		info.StartedAt = &startedAt
		info.ConnectionToken = m.token
	}
	return info
}

// HealthCheck probes every external dependency concurrently.
func (m *Manager) HealthCheck(ctx context.Context) []domain.HealthCheck {
	var (
		resolverChecks []domain.HealthCheck
		notifyChecks   []domain.HealthCheck
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resolverChecks = m.resolver.HealthCheck(gctx)
		return nil
	})
	g.Go(func() error {
		notifyChecks = m.notifier.HealthCheck(gctx)
		return nil
	})
	_ = g.Wait()

	checks := append([]domain.HealthCheck{}, resolverChecks...)
	checks = append(checks, domain.CheckPath("Cache directory", m.cfg.Cache.Dir))
	checks = append(checks, notifyChecks...)
	return checks
}

// Close stops a running server and releases the manager. Safe to call more
// than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()
		if state == domain.StateRunning || state == domain.StateStarting {
			err = m.Stop(context.Background())
		}
	})
	return err
}

// newToken materializes the configured connection token policy: empty means
// no token, "auto" mints a fresh token per start, anything else is literal.
func (m *Manager) newToken() string {
	switch m.cfg.Server.ConnectionToken {
	case "":
		return ""
	case "auto":
		return uuid.NewString()
	default:
		return m.cfg.Server.ConnectionToken
	}
}

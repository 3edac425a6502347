package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeops/internal/domain"
	"codeops/internal/service"
)

// mockResolver hands back a fixed resolution.
type mockResolver struct {
	mu       sync.Mutex
	resolved *domain.ResolvedVersion
	err      error
	calls    int
}

func (m *mockResolver) Resolve(_ context.Context, _ string) (*domain.ResolvedVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resolved, nil
}

func (m *mockResolver) HealthCheck(context.Context) []domain.HealthCheck { return nil }

// mockDownloader counts fetches and optionally fails.
type mockDownloader struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockDownloader) Fetch(_ context.Context, _, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("archive"), 0o644)
}

func (m *mockDownloader) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockExtractor materializes a valid install directory on success.
type mockExtractor struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockExtractor) Extract(_ string, platform domain.Platform, targetDir string) (*domain.InstalledServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if err := os.MkdirAll(filepath.Join(targetDir, "bin"), 0o755); err != nil {
		return nil, err
	}
	bin := filepath.Join(targetDir, platform.BinaryRelPath())
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(targetDir, ".codeops-complete"), []byte("ok\n"), 0o644); err != nil {
		return nil, err
	}
	return &domain.InstalledServer{Platform: platform, Path: targetDir}, nil
}

// mockSupervisor fabricates handles without spawning processes.
type mockSupervisor struct {
	mu       sync.Mutex
	startErr error
	readyErr error
	starts   int
	stops    int
	opts     []service.SpawnOptions
	waits    []time.Duration
	stopFns  map[*service.Handle]func(error)
}

func newMockSupervisor() *mockSupervisor {
	return &mockSupervisor{stopFns: make(map[*service.Handle]func(error))}
}

func (m *mockSupervisor) Start(_ *domain.InstalledServer, opts service.SpawnOptions) (*service.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.starts++
	m.opts = append(m.opts, opts)
	h, stop := service.NewLiveHandle(1000+m.starts, opts.Host, opts.Port)
	m.stopFns[h] = stop
	return h, nil
}

func (m *mockSupervisor) WaitReady(_ context.Context, _ *service.Handle, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyErr
}

func (m *mockSupervisor) Stop(h *service.Handle, wait time.Duration) error {
	m.mu.Lock()
	stop := m.stopFns[h]
	m.stops++
	m.waits = append(m.waits, wait)
	m.mu.Unlock()
	if stop != nil {
		stop(nil)
	}
	return nil
}

func (m *mockSupervisor) IsRunning(h *service.Handle) bool {
	return h != nil && !h.Exited()
}

// crash simulates the process dying out from under the supervisor.
func (m *mockSupervisor) crash(h *service.Handle, waitErr error) {
	m.mu.Lock()
	stop := m.stopFns[h]
	m.mu.Unlock()
	if stop != nil {
		stop(waitErr)
	}
}

func (m *mockSupervisor) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *mockSupervisor) lastHandle() *service.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.stopFns {
		if !h.Exited() {
			return h
		}
	}
	return nil
}

func (m *mockSupervisor) stopWaits() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.waits...)
}

func (m *mockSupervisor) spawnedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]string, 0, len(m.opts))
	for _, o := range m.opts {
		tokens = append(tokens, o.ConnectionToken)
	}
	return tokens
}

// mockNotifier records emitted lifecycle events.
type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) Notify(_ context.Context, event string, _ domain.ServerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) HealthCheck(context.Context) []domain.HealthCheck { return nil }

func (m *mockNotifier) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *mockNotifier) has(event string) bool {
	for _, e := range m.recorded() {
		if e == event {
			return true
		}
	}
	return false
}

func testResolved(commit string) *domain.ResolvedVersion {
	return &domain.ResolvedVersion{
		APIVersion:  "v11.1.2",
		Commit:      commit,
		Platform:    linuxX64,
		DownloadURL: fmt.Sprintf("https://update.example/commit:%s/server-linux-x64/stable", commit),
	}
}

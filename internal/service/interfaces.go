// Package service implements version resolution, installation, and process
// supervision for the VS Code server backend.
package service

import (
	"context"
	"time"

	"codeops/internal/domain"
)

// VersionResolver maps a frontend library version (or "latest") to the exact
// compatible server build. Pure with respect to local state; safe to retry.
type VersionResolver interface {
	Resolve(ctx context.Context, version string) (*domain.ResolvedVersion, error)
	HealthCheck(ctx context.Context) []domain.HealthCheck
}

// Downloader streams a remote archive to a local destination path.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Extractor unpacks an archive into the store, all or nothing.
type Extractor interface {
	Extract(archivePath string, platform domain.Platform, targetDir string) (*domain.InstalledServer, error)
}

// Store is the commit+platform keyed cache of unpacked server installs.
type Store interface {
	EnsureRoot() error
	InstallDir(commit string, p domain.Platform) string
	ArchivePath(commit string, p domain.Platform) string
	IsInstalled(commit string, p domain.Platform) bool
	List() ([]domain.InstalledServer, error)
	Remove(commit string, p domain.Platform) error
	Clear(keepPatterns []string) (int, error)
}

// SpawnOptions carries the process arguments derived from ServerConfig.
type SpawnOptions struct {
	Port             int
	Host             string
	DisableTelemetry bool
	ConnectionToken  string
	ExtraArgs        []string
}

// Supervisor owns the lifecycle of the spawned server process. Handles never
// escape the supervisor and its manager.
type Supervisor interface {
	Start(installed *domain.InstalledServer, opts SpawnOptions) (*Handle, error)
	WaitReady(ctx context.Context, h *Handle, timeout time.Duration) error
	Stop(h *Handle, gracefulWait time.Duration) error
	IsRunning(h *Handle) bool
}

// Notifier pushes lifecycle events to an external sink. Best-effort: a
// failed notification never fails the lifecycle operation that emitted it.
type Notifier interface {
	Notify(ctx context.Context, event string, info domain.ServerInfo)
	HealthCheck(ctx context.Context) []domain.HealthCheck
}

// Ensure compile-time interface satisfaction.
var (
	_ VersionResolver = (*Resolver)(nil)
	_ Downloader      = (*HTTPDownloader)(nil)
	_ Extractor       = (*ArchiveExtractor)(nil)
	_ Store           = (*FileStore)(nil)
	_ Supervisor      = (*ProcessSupervisor)(nil)
	_ Notifier        = (*WebhookNotifier)(nil)
)

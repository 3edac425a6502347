// Package domain defines the core types and error taxonomy for codeops.
package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// OS is the operating system component of a platform descriptor.
type OS string

const (
	OSLinux   OS = "linux"
	OSDarwin  OS = "darwin"
	OSWindows OS = "windows"
)

// Arch is the CPU architecture component of a platform descriptor.
type Arch string

const (
	ArchX64   Arch = "x86_64"
	ArchARM64 Arch = "arm64"
	ArchARMv7 Arch = "armv7"
)

// ArchiveKind is the archive format a server build ships in.
type ArchiveKind string

const (
	ArchiveTarGz ArchiveKind = "tar_gz"
	ArchiveZip   ArchiveKind = "zip"
)

// Platform describes the host the server binary must be built for.
// Computed once at startup and never mutated.
type Platform struct {
	OS   OS   `json:"os"`
	Arch Arch `json:"arch"`
}

// DetectPlatform maps the Go runtime identifiers to a supported platform.
func DetectPlatform() (Platform, error) {
	var p Platform

	switch runtime.GOOS {
	case "linux":
		p.OS = OSLinux
	case "darwin":
		p.OS = OSDarwin
	case "windows":
		p.OS = OSWindows
	default:
		return Platform{}, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	switch runtime.GOARCH {
	case "amd64":
		p.Arch = ArchX64
	case "arm64":
		p.Arch = ArchARM64
	case "arm":
		p.Arch = ArchARMv7
	default:
		return Platform{}, fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	// Upstream only publishes x64 server builds for Windows.
	if p.OS == OSWindows && p.Arch != ArchX64 {
		return Platform{}, fmt.Errorf("unsupported platform: %s %s", runtime.GOOS, runtime.GOARCH)
	}
	if p.OS == OSDarwin && p.Arch == ArchARMv7 {
		return Platform{}, fmt.Errorf("unsupported platform: %s %s", runtime.GOOS, runtime.GOARCH)
	}

	return p, nil
}

// ArchiveKind returns the archive format the download endpoint serves for
// this platform: zip on Windows, tar.gz everywhere else.
func (p Platform) ArchiveKind() ArchiveKind {
	if p.OS == OSWindows {
		return ArchiveZip
	}
	return ArchiveTarGz
}

// ServerFlavor returns the upstream build flavor string, e.g. "server-linux-x64".
func (p Platform) ServerFlavor() string {
	osPart := string(p.OS)
	if p.OS == OSWindows {
		osPart = "win32"
	}

	archPart := "x64"
	switch p.Arch {
	case ArchARM64:
		archPart = "arm64"
	case ArchARMv7:
		archPart = "armhf"
	}

	return "server-" + osPart + "-" + archPart
}

// URLSuffix returns the final path segment of the download URL.
func (p Platform) URLSuffix() string {
	if p.OS == OSWindows {
		return "archive"
	}
	return "stable"
}

// Key returns the identifier used in cache directory names, e.g. "linux-x86_64".
func (p Platform) Key() string {
	return string(p.OS) + "-" + string(p.Arch)
}

// BinaryRelPath returns the server entrypoint path relative to an install
// directory.
func (p Platform) BinaryRelPath() string {
	if p.OS == OSWindows {
		return filepath.Join("bin", "code-server.cmd")
	}
	return filepath.Join("bin", "code-server")
}

func (p Platform) String() string {
	return p.ServerFlavor()
}

// ParsePlatformKey parses a cache directory key produced by Platform.Key.
func ParsePlatformKey(key string) (Platform, error) {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 {
		return Platform{}, fmt.Errorf("invalid platform key: %q", key)
	}

	p := Platform{OS: OS(parts[0]), Arch: Arch(parts[1])}
	switch p.OS {
	case OSLinux, OSDarwin, OSWindows:
	default:
		return Platform{}, fmt.Errorf("invalid platform key: unknown os %q", parts[0])
	}
	switch p.Arch {
	case ArchX64, ArchARM64, ArchARMv7:
	default:
		return Platform{}, fmt.Errorf("invalid platform key: unknown arch %q", parts[1])
	}
	return p, nil
}

// ResolvedVersion is the outcome of version resolution: the exact server
// build compatible with a frontend library release. The same APIVersion
// always maps to the same Commit, so results may be cached per version.
type ResolvedVersion struct {
	APIVersion  string   `json:"api_version"`
	Commit      string   `json:"commit"`
	DownloadURL string   `json:"download_url"`
	Platform    Platform `json:"platform"`
}

// InstalledServer is a validated server installation in the archive store.
type InstalledServer struct {
	Commit   string   `json:"commit"`
	Platform Platform `json:"platform"`
	Path     string   `json:"path"`
}

// Binary returns the absolute path of the server entrypoint.
func (s InstalledServer) Binary() string {
	return filepath.Join(s.Path, s.Platform.BinaryRelPath())
}

// ServerState is the manager-owned lifecycle state.
type ServerState string

const (
	StateNotInstalled ServerState = "not_installed"
	StateInstalled    ServerState = "installed"
	StateStarting     ServerState = "starting"
	StateRunning      ServerState = "running"
	StateStopping     ServerState = "stopping"
	StateStopped      ServerState = "stopped"
	StateFailed       ServerState = "failed"
)

// ServerInfo is the serializable snapshot returned by Manager.Info, suitable
// for handing across a host-application boundary.
type ServerInfo struct {
	State           ServerState `json:"state"`
	URL             string      `json:"url"`
	APIVersion      string      `json:"api_version,omitempty"`
	Commit          string      `json:"commit,omitempty"`
	Platform        string      `json:"platform,omitempty"`
	PID             int         `json:"pid,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	FailReason      string      `json:"fail_reason,omitempty"`
	ConnectionToken string      `json:"connection_token,omitempty"`
}

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	StatusOK    HealthStatus = "OK"
	StatusWarn  HealthStatus = "WARN"
	StatusError HealthStatus = "ERROR"
)

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
}

// CheckPath verifies that a path exists and is a directory.
func CheckPath(name, path string) HealthCheck {
	info, err := os.Stat(path)
	if err != nil {
		return HealthCheck{Name: name, Status: StatusWarn, Message: "Directory not found (created on demand)"}
	}
	if !info.IsDir() {
		return HealthCheck{Name: name, Status: StatusError, Message: "Path exists but is not a directory"}
	}
	return HealthCheck{Name: name, Status: StatusOK, Message: "OK"}
}

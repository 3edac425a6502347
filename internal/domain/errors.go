package domain

import (
	"fmt"
)

// ResolveErrorKind classifies version resolution failures.
type ResolveErrorKind string

const (
	ResolveNotFound          ResolveErrorKind = "not_found"
	ResolveNetwork           ResolveErrorKind = "network"
	ResolveMalformedManifest ResolveErrorKind = "malformed_manifest"
)

// ResolveError is returned when a frontend library version cannot be mapped
// to a server commit.
type ResolveError struct {
	Kind    ResolveErrorKind
	Version string
	Err     error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Version, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Version, e.Kind)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the resolution could succeed.
func (e *ResolveError) IsRetryable() bool { return e.Kind == ResolveNetwork }

// DownloadErrorKind classifies archive download failures.
type DownloadErrorKind string

const (
	DownloadHTTPStatus DownloadErrorKind = "http_status"
	DownloadNetwork    DownloadErrorKind = "network"
	DownloadIOWrite    DownloadErrorKind = "io_write"
)

// DownloadError is returned when fetching a server archive fails. The
// downloader guarantees no partial artifact remains on any failure path.
type DownloadError struct {
	Kind   DownloadErrorKind
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Kind == DownloadHTTPStatus {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the download could succeed.
func (e *DownloadError) IsRetryable() bool {
	return e.Kind == DownloadNetwork || e.Status >= 500 || e.Status == 429
}

// ExtractErrorKind classifies archive extraction failures.
type ExtractErrorKind string

const (
	ExtractCorruptArchive   ExtractErrorKind = "corrupt_archive"
	ExtractIO               ExtractErrorKind = "io"
	ExtractPermissionDenied ExtractErrorKind = "permission_denied"
)

// ExtractError is returned when unpacking an archive fails. The extractor
// removes its temporary directory, leaving the store unchanged.
type ExtractError struct {
	Kind ExtractErrorKind
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// SuperviseErrorKind classifies process supervision failures.
type SuperviseErrorKind string

const (
	SuperviseSpawnFailed    SuperviseErrorKind = "spawn_failed"
	SupervisePortInUse      SuperviseErrorKind = "port_in_use"
	SuperviseTimeout        SuperviseErrorKind = "timeout"
	SuperviseAlreadyRunning SuperviseErrorKind = "already_running"
)

// SuperviseError is returned by the process supervisor.
type SuperviseError struct {
	Kind SuperviseErrorKind
	Err  error
}

func (e *SuperviseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("supervise: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("supervise: %s", e.Kind)
}

func (e *SuperviseError) Unwrap() error { return e.Err }

// InvalidStateError is returned when a lifecycle operation is invoked from a
// state it cannot make progress from. The caller sees exactly which states
// would have been accepted instead of a silent coercion.
type InvalidStateError struct {
	Op       string
	Expected []ServerState
	Actual   ServerState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid state %q (expected one of %v)", e.Op, e.Actual, e.Expected)
}

// OpError is the top-level error the manager surfaces: the failed operation
// plus the underlying typed cause.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with the operation name. Returns nil for a nil err.
func NewOpError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

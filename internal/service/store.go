package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"codeops/internal/config"
	"codeops/internal/domain"
)

// markerName is written into an install directory as the final step of
// extraction. A directory without it is treated as a partial install.
const markerName = ".codeops-complete"

// archiveSubdir holds downloaded archives beneath the cache root.
const archiveSubdir = "archives"

// FileStore manages the on-disk server cache. Install directories are keyed
// by commit and platform so different versions and targets never collide.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a file store rooted at the configured cache directory.
func NewStore(cfg *config.Config, logger *zap.Logger) *FileStore {
	return &FileStore{root: cfg.Cache.Dir, logger: logger}
}

// Root returns the cache root directory.
func (s *FileStore) Root() string {
	return s.root
}

// EnsureRoot creates the cache root and archive directory if missing.
func (s *FileStore) EnsureRoot() error {
	if err := os.MkdirAll(filepath.Join(s.root, archiveSubdir), 0o750); err != nil {
		return &domain.ExtractError{Kind: domain.ExtractIO, Path: s.root, Err: err}
	}
	return nil
}

// InstallDir returns the install directory for a resolved version, e.g.
// <root>/abcdef1234/linux-x86_64 collapsed to <root>/<commit>-<platform>.
func (s *FileStore) InstallDir(commit string, platform domain.Platform) string {
	return filepath.Join(s.root, installDirName(commit, platform))
}

// ArchivePath returns where the downloaded archive for a version lives.
func (s *FileStore) ArchivePath(commit string, platform domain.Platform) string {
	ext := ".tar.gz"
	if platform.ArchiveKind() == domain.ArchiveZip {
		ext = ".zip"
	}
	return filepath.Join(s.root, archiveSubdir, installDirName(commit, platform)+ext)
}

// IsInstalled reports whether a complete, usable install exists for the
// given commit and platform.
func (s *FileStore) IsInstalled(commit string, platform domain.Platform) bool {
	return installValid(s.InstallDir(commit, platform), platform)
}

// List returns every complete install in the cache, sorted by directory name.
func (s *FileStore) List() ([]domain.InstalledServer, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &domain.ExtractError{Kind: domain.ExtractIO, Path: s.root, Err: err}
	}

	var installs []domain.InstalledServer
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == archiveSubdir {
			continue
		}
		commit, platform, ok := parseInstallDirName(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if !installValid(path, platform) {
			continue
		}
		installs = append(installs, domain.InstalledServer{
			Commit:   commit,
			Platform: platform,
			Path:     path,
		})
	}

	sort.Slice(installs, func(i, j int) bool {
		return installs[i].Path < installs[j].Path
	})
	return installs, nil
}

// Remove deletes the install directory and archive for a version.
func (s *FileStore) Remove(commit string, platform domain.Platform) error {
	dir := s.InstallDir(commit, platform)
	if err := os.RemoveAll(dir); err != nil {
		return &domain.ExtractError{Kind: domain.ExtractIO, Path: dir, Err: err}
	}
	if err := os.Remove(s.ArchivePath(commit, platform)); err != nil && !os.IsNotExist(err) {
		return &domain.ExtractError{Kind: domain.ExtractIO, Path: s.ArchivePath(commit, platform), Err: err}
	}
	return nil
}

// Clear removes every cache entry whose directory name matches none of the
// keep patterns, and all leftover archives and temp directories. It returns
// the number of install directories removed.
func (s *FileStore) Clear(keepPatterns []string) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &domain.ExtractError{Kind: domain.ExtractIO, Path: s.root, Err: err}
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if name == archiveSubdir {
			if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
				return removed, &domain.ExtractError{Kind: domain.ExtractIO, Path: name, Err: err}
			}
			continue
		}
		if keepMatch(keepPatterns, name) {
			s.logger.Debug("Keeping cache entry", zap.String("name", name))
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			return removed, &domain.ExtractError{Kind: domain.ExtractIO, Path: name, Err: err}
		}
		if entry.IsDir() {
			removed++
		}
	}

	s.logger.Info("Cache cleared", zap.Int("removed", removed))
	return removed, nil
}

func keepMatch(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// installDirName builds the cache key for a commit and platform, e.g.
// "abcdef1-linux-x86_64".
func installDirName(commit string, platform domain.Platform) string {
	return fmt.Sprintf("%s-%s", commit, platform.Key())
}

// parseInstallDirName reverses installDirName. Commits contain no dashes, so
// everything after the first dash is the platform key.
func parseInstallDirName(name string) (commit string, platform domain.Platform, ok bool) {
	commit, key, found := strings.Cut(name, "-")
	if !found || commit == "" {
		return "", domain.Platform{}, false
	}
	platform, err := domain.ParsePlatformKey(key)
	if err != nil {
		return "", domain.Platform{}, false
	}
	return commit, platform, true
}

// commitFromInstallDir extracts the commit from an install directory path.
func commitFromInstallDir(dir string) string {
	commit, _, _ := strings.Cut(filepath.Base(dir), "-")
	return commit
}

// installValid reports whether dir holds a complete install: the completion
// marker must exist and the server binary must be present and runnable.
func installValid(dir string, platform domain.Platform) bool {
	if _, err := os.Stat(filepath.Join(dir, markerName)); err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, platform.BinaryRelPath()))
	if err != nil || info.IsDir() {
		return false
	}
	if platform.OS != domain.OSWindows && info.Mode().Perm()&0o111 == 0 {
		return false
	}
	return true
}

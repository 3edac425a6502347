package service

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"codeops/internal/domain"
)

// ArchiveExtractor unpacks downloaded server archives into the store. Every
// extraction goes through a sibling temporary directory and a single atomic
// rename, so a crash mid-extract never leaves a partial install that looks
// usable.
type ArchiveExtractor struct {
	logger *zap.Logger
}

// NewExtractor creates an archive extractor.
func NewExtractor(logger *zap.Logger) *ArchiveExtractor {
	return &ArchiveExtractor{logger: logger}
}

// Extract unpacks archivePath into targetDir. If targetDir is already a
// valid install the extraction is skipped entirely. On failure the temporary
// directory is removed and the store is left unchanged.
func (e *ArchiveExtractor) Extract(archivePath string, platform domain.Platform, targetDir string) (*domain.InstalledServer, error) {
	installed := &domain.InstalledServer{
		Commit:   commitFromInstallDir(targetDir),
		Platform: platform,
		Path:     targetDir,
	}

	if installValid(targetDir, platform) {
		e.logger.Debug("Server already extracted", zap.String("path", targetDir))
		return installed, nil
	}

	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, classifyFSErr(targetDir, err)
	}

	tmpRoot, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return nil, classifyFSErr(targetDir, err)
	}
	defer func() {
		_ = os.RemoveAll(tmpRoot)
	}()

	e.logger.Info("Extracting server archive",
		zap.String("archive", archivePath),
		zap.String("target", targetDir))

	var srcDir string
	switch platform.ArchiveKind() {
	case domain.ArchiveZip:
		if err := e.unzip(archivePath, tmpRoot); err != nil {
			return nil, err
		}
		srcDir = tmpRoot
	default:
		if err := e.untarGz(archivePath, tmpRoot); err != nil {
			return nil, err
		}
		// The upstream tarball wraps everything in a single top-level
		// directory; that directory becomes the install.
		srcDir, err = singleSubdir(tmpRoot)
		if err != nil {
			return nil, &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
		}
	}

	binPath := filepath.Join(srcDir, platform.BinaryRelPath())
	if info, err := os.Stat(binPath); err != nil || info.IsDir() {
		return nil, &domain.ExtractError{
			Kind: domain.ExtractCorruptArchive,
			Path: archivePath,
			Err:  fmt.Errorf("archive is missing the server binary %s", platform.BinaryRelPath()),
		}
	}

	// The completion marker is written before the rename, so its presence in
	// the final directory proves the install committed.
	if err := os.WriteFile(filepath.Join(srcDir, markerName), []byte("ok\n"), 0o644); err != nil {
		return nil, classifyFSErr(targetDir, err)
	}

	// A directory without a marker is a leftover from an interrupted run;
	// replacing it keeps the all-or-nothing guarantee.
	if _, err := os.Stat(targetDir); err == nil {
		if err := os.RemoveAll(targetDir); err != nil {
			return nil, classifyFSErr(targetDir, err)
		}
	}

	if err := os.Rename(srcDir, targetDir); err != nil {
		return nil, classifyFSErr(targetDir, err)
	}

	e.logger.Info("Extraction complete", zap.String("path", targetDir))
	return installed, nil
}

func (e *ArchiveExtractor) untarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return classifyFSErr(archivePath, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
		}

		dest, err := securePath(destDir, hdr.Name)
		if err != nil {
			return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, fsMode(hdr.FileInfo().Mode())); err != nil {
				return classifyFSErr(dest, err)
			}
		case tar.TypeReg:
			if err := writeFileFrom(dest, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if strings.HasPrefix(hdr.Linkname, "/") {
				return &domain.ExtractError{
					Kind: domain.ExtractCorruptArchive,
					Path: archivePath,
					Err:  fmt.Errorf("archive entry %q links outside the install: %q", hdr.Name, hdr.Linkname),
				}
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
				return classifyFSErr(dest, err)
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return classifyFSErr(dest, err)
			}
		default:
			// Other entry types (char devices, fifos) never appear in
			// server builds; skip rather than fail.
		}
	}
}

func (e *ArchiveExtractor) unzip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
	}
	defer func() { _ = zr.Close() }()

	for _, entry := range zr.File {
		dest, err := securePath(destDir, entry.Name)
		if err != nil {
			return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, fsMode(entry.Mode())); err != nil {
				return classifyFSErr(dest, err)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return &domain.ExtractError{Kind: domain.ExtractCorruptArchive, Path: archivePath, Err: err}
		}
		writeErr := writeFileFrom(dest, rc, entry.Mode())
		_ = rc.Close()
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

// writeFileFrom streams src into path, creating parent directories.
func writeFileFrom(path string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return classifyFSErr(path, err)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsMode(mode))
	if err != nil {
		return classifyFSErr(path, err)
	}

	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return classifyFSErr(path, copyErr)
	}
	if closeErr != nil {
		return classifyFSErr(path, closeErr)
	}
	return nil
}

// securePath joins an archive entry name onto destDir, rejecting entries
// that would escape it.
func securePath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(destDir, name))
	if cleaned != destDir && !strings.HasPrefix(cleaned, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return cleaned, nil
}

// singleSubdir returns the sole directory inside root.
func singleSubdir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	if len(dirs) != 1 {
		return "", fmt.Errorf("expected exactly one directory in archive, found %d", len(dirs))
	}
	return dirs[0], nil
}

// fsMode keeps permission bits only, with a sane floor for regular files.
func fsMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	return perm
}

func classifyFSErr(path string, err error) error {
	kind := domain.ExtractIO
	if os.IsPermission(err) {
		kind = domain.ExtractPermissionDenied
	}
	return &domain.ExtractError{Kind: kind, Path: path, Err: err}
}

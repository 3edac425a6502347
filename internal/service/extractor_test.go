package service_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"codeops/internal/domain"
	"codeops/internal/service"
)

var winX64 = domain.Platform{OS: domain.OSWindows, Arch: domain.ArchX64}

type tarEntry struct {
	name string
	body string
	mode int64
	dir  bool
}

func makeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "server.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// serverTarball builds a realistic upstream archive: one wrapper directory
// holding bin/code-server and support files.
func serverTarball(t *testing.T, withBinary bool) string {
	t.Helper()
	entries := []tarEntry{
		{name: "vscode-server-linux-x64/", mode: 0o755, dir: true},
		{name: "vscode-server-linux-x64/product.json", body: `{"quality":"stable"}`, mode: 0o644},
		{name: "vscode-server-linux-x64/bin/", mode: 0o755, dir: true},
	}
	if withBinary {
		entries = append(entries, tarEntry{
			name: "vscode-server-linux-x64/bin/code-server",
			body: "#!/bin/sh\nexit 0\n",
			mode: 0o755,
		})
	}
	return makeTarGz(t, entries)
}

func TestExtractTarGzStripsWrapperDir(t *testing.T) {
	archive := serverTarball(t, true)
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")

	installed, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if installed.Path != target {
		t.Errorf("installed path = %q, want %q", installed.Path, target)
	}

	bin := filepath.Join(target, "bin", "code-server")
	info, err := os.Stat(bin)
	if err != nil {
		t.Fatalf("binary missing: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Error("binary is not executable")
	}
	if _, err := os.Stat(filepath.Join(target, "product.json")); err != nil {
		t.Error("wrapper directory contents were not promoted to the install root")
	}
	assertNoExtractDebris(t, filepath.Dir(target))
}

func TestExtractIsIdempotent(t *testing.T) {
	archive := serverTarball(t, true)
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")
	extractor := service.NewExtractor(zap.NewNop())

	if _, err := extractor.Extract(archive, linuxX64, target); err != nil {
		t.Fatalf("first Extract error: %v", err)
	}

	// Corrupt the archive; a second call must skip it entirely.
	if err := os.WriteFile(archive, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := extractor.Extract(archive, linuxX64, target); err != nil {
		t.Fatalf("second Extract should skip the valid install: %v", err)
	}
}

func TestExtractReplacesPartialInstall(t *testing.T) {
	archive := serverTarball(t, true)
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")

	// A leftover from an interrupted extraction: files but no marker.
	if err := os.MkdirAll(filepath.Join(target, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "stale"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target); err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "stale")); !os.IsNotExist(err) {
		t.Error("partial install contents should have been replaced")
	}
	if _, err := os.Stat(filepath.Join(target, "bin", "code-server")); err != nil {
		t.Error("fresh install is missing the binary")
	}
}

func TestExtractRejectsCorruptArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "server.tar.gz")
	if err := os.WriteFile(archive, []byte("this is not a gzip stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")

	_, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target)
	var exErr *domain.ExtractError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExtractError, got %v", err)
	}
	if exErr.Kind != domain.ExtractCorruptArchive {
		t.Errorf("kind = %q, want corrupt_archive", exErr.Kind)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target must not exist after failed extraction")
	}
	assertNoExtractDebris(t, filepath.Dir(target))
}

func TestExtractRejectsArchiveWithoutBinary(t *testing.T) {
	archive := serverTarball(t, false)
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")

	_, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target)
	var exErr *domain.ExtractError
	if !errors.As(err, &exErr) || exErr.Kind != domain.ExtractCorruptArchive {
		t.Fatalf("expected corrupt_archive, got %v", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target must not exist after failed extraction")
	}
}

func TestExtractRejectsMultipleTopLevelDirs(t *testing.T) {
	archive := makeTarGz(t, []tarEntry{
		{name: "one/", mode: 0o755, dir: true},
		{name: "two/", mode: 0o755, dir: true},
	})
	target := filepath.Join(t.TempDir(), "abc-linux-x86_64")

	_, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target)
	var exErr *domain.ExtractError
	if !errors.As(err, &exErr) || exErr.Kind != domain.ExtractCorruptArchive {
		t.Fatalf("expected corrupt_archive, got %v", err)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	archive := makeTarGz(t, []tarEntry{
		{name: "dir/", mode: 0o755, dir: true},
		{name: "../escape", body: "evil", mode: 0o644},
	})
	parent := t.TempDir()
	target := filepath.Join(parent, "abc-linux-x86_64")

	_, err := service.NewExtractor(zap.NewNop()).Extract(archive, linuxX64, target)
	var exErr *domain.ExtractError
	if !errors.As(err, &exErr) || exErr.Kind != domain.ExtractCorruptArchive {
		t.Fatalf("expected corrupt_archive, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(parent, "escape")); !os.IsNotExist(statErr) {
		t.Error("traversal entry escaped the extraction directory")
	}
}

func TestExtractZipArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"product.json":        `{"quality":"stable"}`,
		"bin/code-server.cmd": "@echo off\r\n",
	} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "server.zip")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "abc-windows-x86_64")

	installed, err := service.NewExtractor(zap.NewNop()).Extract(archive, winX64, target)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if _, err := os.Stat(installed.Binary()); err != nil {
		t.Errorf("zip binary missing: %v", err)
	}
}

// assertNoExtractDebris verifies no temp extraction directories were left.
func assertNoExtractDebris(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".extract-") {
			t.Errorf("leftover extraction dir: %s", entry.Name())
		}
	}
}

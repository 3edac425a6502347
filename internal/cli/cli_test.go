package cli

import (
	"os"
	"path/filepath"
	"testing"

	"codeops/internal/config"
)

// testConfig writes a config pointing all file paths into the test's temp
// space so commands never touch the real cache or log directories.
func testConfig(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Cache.Dir = filepath.Join(tmp, "servers")
	cfg.Logging.FileEnabled = false
	cfg.Logging.ConsoleEnabled = false

	path := filepath.Join(tmp, "config.toml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	orig := os.Args
	defer func() { os.Args = orig }()
	os.Args = append([]string{"codeops"}, args...)
	return Execute()
}

// TestInitConfigCreatesFile verifies the init-config command creates a valid config file
func TestInitConfigCreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config.toml")

	cfgFile = ""
	if err := runCLI(t, "init-config", "-o", out, "--force"); err != nil {
		t.Fatalf("Execute(init-config) error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if _, err := config.LoadConfig(out); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
}

func TestCacheListOnEmptyCache(t *testing.T) {
	if err := runCLI(t, "cache", "list", "-c", testConfig(t)); err != nil {
		t.Fatalf("Execute(cache list) error: %v", err)
	}
}

func TestCacheClearOnEmptyCache(t *testing.T) {
	if err := runCLI(t, "cache", "clear", "-c", testConfig(t)); err != nil {
		t.Fatalf("Execute(cache clear) error: %v", err)
	}
}

func TestVersionFlag(t *testing.T) {
	if err := runCLI(t, "--version"); err != nil {
		t.Fatalf("Execute(--version) error: %v", err)
	}
}

func TestHelpDefault(t *testing.T) {
	if err := runCLI(t); err != nil {
		t.Fatalf("Execute default help error: %v", err)
	}
}

func TestRunFlagOverridesApplyToConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	cmd := runCmd
	if err := cmd.Flags().Set("port", "9999"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("api-version", "v10.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("extra-arg", "--log=debug"); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = cmd.Flags().Set("port", "0")
		_ = cmd.Flags().Set("api-version", "")
	}()

	applyFlagOverrides(cmd, cfg)

	if cfg.Server.Port != 9999 {
		t.Errorf("port override = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Resolver.APIVersion != "v10.0.0" {
		t.Errorf("api-version override = %q, want v10.0.0", cfg.Resolver.APIVersion)
	}
	found := false
	for _, arg := range cfg.Server.ExtraArgs {
		if arg == "--log=debug" {
			found = true
		}
	}
	if !found {
		t.Errorf("extra args %v missing --log=debug", cfg.Server.ExtraArgs)
	}
}

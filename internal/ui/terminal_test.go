package ui_test

import (
	"bytes"
	"strings"
	"testing"

	"codeops/internal/domain"
	"codeops/internal/ui"
)

func newBufferedTerminal() (*ui.Terminal, *bytes.Buffer) {
	var buf bytes.Buffer
	return ui.NewTerminalWithWriter(&buf, &buf, false), &buf
}

func TestMessageLabelsWithoutTTY(t *testing.T) {
	term, buf := newBufferedTerminal()

	term.Success("done")
	term.Error("broke")
	term.Warning("careful")
	term.Info("fyi")

	out := buf.String()
	for _, want := range []string{"SUCCESS: done", "ERROR: broke", "WARNING: careful", "INFO: fyi"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSectionAndStep(t *testing.T) {
	term, buf := newBufferedTerminal()

	term.Section("Cached servers")
	term.Step(2, 3, "Checking port availability...")

	out := buf.String()
	if !strings.Contains(out, "== Cached servers ==") {
		t.Errorf("section header missing:\n%s", out)
	}
	if !strings.Contains(out, "[2/3] Checking port availability...") {
		t.Errorf("step indicator missing:\n%s", out)
	}
}

func TestTableAlignsColumns(t *testing.T) {
	term, buf := newBufferedTerminal()

	term.Table([]string{"COMMIT", "PLATFORM"}, [][]string{
		{"abc", "linux-x86_64"},
		{"0123456789", "darwin-arm64"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("table has %d lines, want 4:\n%s", len(lines), buf.String())
	}
	// Second column must start at the same offset in every row.
	offset := strings.Index(lines[0], "PLATFORM")
	if offset < 0 {
		t.Fatalf("header missing PLATFORM: %q", lines[0])
	}
	if got := strings.Index(lines[2], "linux-x86_64"); got != offset {
		t.Errorf("row 1 column offset = %d, want %d", got, offset)
	}
	if got := strings.Index(lines[3], "darwin-arm64"); got != offset {
		t.Errorf("row 2 column offset = %d, want %d", got, offset)
	}
}

func TestHealthCheckTable(t *testing.T) {
	term, buf := newBufferedTerminal()

	term.HealthCheckTable([]domain.HealthCheck{
		{Name: "Release metadata", Status: domain.StatusOK, Message: "Reachable"},
		{Name: "Server port", Status: domain.StatusWarn, Message: "in use"},
	})

	out := buf.String()
	for _, want := range []string{"Release metadata", "OK", "Server port", "WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("health table missing %q:\n%s", want, out)
		}
	}
}

func TestSprintHelpersPassThroughWithoutTTY(t *testing.T) {
	term, _ := newBufferedTerminal()
	if got := term.SuccessSprint("plain"); got != "plain" {
		t.Errorf("SuccessSprint = %q, want unstyled text", got)
	}
	if got := term.DimSprint("plain"); got != "plain" {
		t.Errorf("DimSprint = %q, want unstyled text", got)
	}
}

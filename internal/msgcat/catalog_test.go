package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.Render("reject.InvalidSquare", map[string]any{"Square": "z9"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "z9") {
		t.Fatalf("rendered %q, want the square interpolated", out)
	}

	if _, err := c.Render("reject.NoSuchKey", nil); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestRenderOrFallsBack(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.RenderOr("reject.NoSuchKey", nil, "fallback"); got != "fallback" {
		t.Fatalf("RenderOr = %q, want fallback", got)
	}
	// Missing template data also falls back rather than erroring out.
	if got := c.RenderOr("reject.InvalidSquare", nil, "fallback"); got != "fallback" {
		t.Fatalf("RenderOr with bad data = %q, want fallback", got)
	}
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	override := "reject:\n  NotYourTurn: \"wait for your opponent\"\n"
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("reject.NotYourTurn", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "wait for your opponent" {
		t.Fatalf("override not applied, got %q", out)
	}
	// Untouched keys keep their defaults.
	if _, err := c.Render("reject.RoleTaken", nil); err != nil {
		t.Fatalf("default key lost: %v", err)
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := "reject:\n  Internal: \"a\"\n"
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestRejectKey(t *testing.T) {
	if got := RejectKey("NotYourTurn"); got != "reject.NotYourTurn" {
		t.Fatalf("RejectKey = %q", got)
	}
}

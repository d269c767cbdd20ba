package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metcalfc/aeonsight/internal/sandbox"
)

func TestStoreDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store.Path() != filepath.Join(tmpDir, "aeonsight", "preferences.yaml") {
		t.Errorf("Path = %s", store.Path())
	}
	p := store.Get()
	if p != Defaults() {
		t.Errorf("fresh store = %+v", p)
	}
	if p.SandboxMode() != sandbox.ScriptsBlocked {
		t.Errorf("default sandbox = %s", p.SandboxMode())
	}
}

func TestStorePersistsEveryChange(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := store.Update(func(p *Preferences) {
		p.FontScale = 140
		p.Sandbox = "allowed"
		p.TTS.Follow = true
		p.TTS.Voice = "en-gb"
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Reload from disk
	store2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	p := store2.Get()
	if p.FontScale != 140 || p.SandboxMode() != sandbox.ScriptsAllowed || !p.TTS.Follow || p.TTS.Voice != "en-gb" {
		t.Errorf("reloaded = %+v", p)
	}
}

func TestUpdateNormalizes(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, err := store.Update(func(p *Preferences) {
		p.IdleMinutes = 500
		p.FontScale = 10
		p.Width = "enormous"
		p.ResumeKey = "page"
		p.Sandbox = "both"
		p.TTS.Rate = 9
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.IdleMinutes != 120 || p.FontScale != 50 || p.Width != WidthNormal ||
		p.ResumeKey != "both" || p.Sandbox != "blocked" || p.TTS.Rate != 3 {
		t.Errorf("normalized = %+v", p)
	}
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "preferences.yaml"), []byte("font_scale: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Get() != Defaults() {
		t.Errorf("prefs = %+v", store.Get())
	}
}

func TestDirFallsBackToHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/tmp/home")
	if got := Dir(); got != filepath.Join("/tmp/home", ".local", "state", "aeonsight") {
		t.Errorf("Dir = %s", got)
	}
}

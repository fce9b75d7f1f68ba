package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeRedirects(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSource_LoadAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.yaml")
	writeRedirects(t, path, "/pune/baner: /pune/baner-west\n/old-city: /noida\n")

	reg, err := New(FileSource{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}

	target, ok := reg.Lookup("/pune/baner")
	if !ok || target != "/pune/baner-west" {
		t.Errorf("Lookup = %q/%v", target, ok)
	}

	if _, ok := reg.Lookup("/missing"); ok {
		t.Error("Lookup hit on a missing path")
	}
}

func TestReload_SwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.yaml")
	writeRedirects(t, path, "/a: /b\n")

	reg, err := New(FileSource{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	writeRedirects(t, path, "/a: /c\n/d: /e\n")
	if err := reg.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	if target, _ := reg.Lookup("/a"); target != "/c" {
		t.Errorf("Lookup after reload = %q, want /c", target)
	}
	if reg.Len() != 2 {
		t.Errorf("Len after reload = %d, want 2", reg.Len())
	}
}

func TestReload_FailureKeepsOldSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.yaml")
	writeRedirects(t, path, "/a: /b\n")

	reg, err := New(FileSource{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := reg.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error for a missing file")
	}

	// The previous table must remain serving.
	if target, ok := reg.Lookup("/a"); !ok || target != "/b" {
		t.Errorf("Lookup after failed reload = %q/%v, want /b", target, ok)
	}
}

func TestNew_MissingFile(t *testing.T) {
	if _, err := New(FileSource{Path: filepath.Join(t.TempDir(), "absent.yaml")}, zap.NewNop()); err == nil {
		t.Fatal("expected error for a missing redirects file")
	}
}

func TestEmpty(t *testing.T) {
	reg := Empty()
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
	if _, ok := reg.Lookup("/anything"); ok {
		t.Error("empty registry returned a hit")
	}
	if err := reg.Reload(context.Background()); err == nil {
		t.Error("reload on a sourceless registry must fail")
	}
}

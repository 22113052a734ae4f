package runfactory

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWrapper(t *testing.T, dir, wrapperName, file string) {
	t.Helper()
	wd := filepath.Join(dir, wrapperName)
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wd, file), []byte("#"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePicksHighestPriorityExtension(t *testing.T) {
	dir := t.TempDir()
	writeWrapper(t, dir, "build", "wrapper.py")
	writeWrapper(t, dir, "build", "wrapper.sh")

	f := New([]string{dir})
	f.IsGOOS = func() string { return "linux" }

	w, err := f.Resolve("build", KindExecute)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.Lang != LangShell {
		t.Fatalf("expected shell to win priority over python, got %v (%s)", w.Lang, w.Path)
	}
}

func TestResolveSkipsWindowsOnlyOnLinux(t *testing.T) {
	dir := t.TempDir()
	writeWrapper(t, dir, "build", "wrapper.bat")
	writeWrapper(t, dir, "build", "wrapper.mk")

	f := New([]string{dir})
	f.IsGOOS = func() string { return "linux" }

	w, err := f.Resolve("build", KindExecute)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.Lang != LangMake {
		t.Fatalf("expected .bat to be skipped on linux, got %v", w.Lang)
	}
}

func TestResolveSearchesBaseDirsInOrder(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeWrapper(t, dir2, "build", "wrapper.sh")

	f := New([]string{dir1, dir2})
	f.IsGOOS = func() string { return "linux" }

	w, err := f.Resolve("build", KindExecute)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Dir(filepath.Dir(w.Path)) != dir2 {
		t.Fatalf("expected match from second base dir, got %s", w.Path)
	}
}

func TestResolveExtractorAndAbortBasenames(t *testing.T) {
	dir := t.TempDir()
	writeWrapper(t, dir, "build", "extractor.sh")
	writeWrapper(t, dir, "build", "wrapper_abort.sh")

	f := New([]string{dir})
	f.IsGOOS = func() string { return "linux" }

	if _, err := f.Resolve("build", KindExtract); err != nil {
		t.Fatalf("resolve extractor: %v", err)
	}
	if _, err := f.Resolve("build", KindAbort); err != nil {
		t.Fatalf("resolve abort: %v", err)
	}
}

func TestResolveNoMatchReturnsErrNoWrapper(t *testing.T) {
	dir := t.TempDir()
	f := New([]string{dir})
	f.IsGOOS = func() string { return "linux" }

	_, err := f.Resolve("missing", KindExecute)
	if err != ErrNoWrapper {
		t.Fatalf("expected ErrNoWrapper, got %v", err)
	}
}

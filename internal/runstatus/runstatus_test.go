package runstatus

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/reqqueue"
	"github.com/oriys/taskrunner/internal/taskrun"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeShellWrapper(t *testing.T, base, name, body string) {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wrapper.sh"), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newTestStatus(t *testing.T, wrapperBase, reportBaseURL string, handler http.HandlerFunc) (*Status, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	queue := reqqueue.New(&reqqueue.Transport{ServerBaseURL: srv.URL, TokenID: "id", TokenPass: "pass"}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx)

	env := taskrun.NewEnv(t.TempDir(), t.TempDir(), reportBaseURL, srv.URL, []string{wrapperBase}, nil, "")
	s := New(env, queue, testLog())
	return s, func() {
		cancel()
		srv.Close()
	}
}

func execDescriptor(target string) *domain.TaskDescriptor {
	return &domain.TaskDescriptor{
		Kind:   domain.KindExecute,
		Run:    domain.RunID{JobID: "230101-1200-ABCD", TaskID: "build", Run: "0"},
		Target: target,
	}
}

func TestStartTaskRefusesSecondRun(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "sleep 5\n")

	s, cleanup := newTestStatus(t, base, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	if err := s.StartTask(context.Background(), execDescriptor("build")); err != nil {
		t.Fatalf("first StartTask: %v", err)
	}
	if err := s.StartTask(context.Background(), execDescriptor("build")); err != ErrBusy {
		t.Fatalf("expected ErrBusy for second start, got %v", err)
	}

	s.AbortTask("230101-1200-ABCD", "build")
	deadline := time.After(5 * time.Second)
	for s.InProgress() {
		select {
		case <-deadline:
			t.Fatal("run never finished after abort")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCurrentIdentityTracksSlot(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "sleep 5\n")

	s, cleanup := newTestStatus(t, base, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	if run, shadow := s.CurrentIdentity(); run != nil || shadow != "" {
		t.Fatalf("expected empty identity before start, got %v %q", run, shadow)
	}

	if err := s.StartTask(context.Background(), execDescriptor("build")); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	run, shadow := s.CurrentIdentity()
	if run == nil || run.JobID != "230101-1200-ABCD" || shadow != "" {
		t.Fatalf("expected run identity while in progress, got %v %q", run, shadow)
	}

	s.AbortTask("230101-1200-ABCD", "build")
	deadline := time.After(5 * time.Second)
	for {
		if run, _ := s.CurrentIdentity(); run == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("identity never cleared after run finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTaskReportAdvertisedWhenConfigured(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "echo 'result=ok' > \"$SF_RESULTS\"\n")

	var mu sync.Mutex
	var pages []string
	s, cleanup := newTestStatus(t, base, "http://reports.example.com", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	if err := s.StartTask(context.Background(), execDescriptor("build")); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(pages)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected TaskReport and TaskDone, got %v", pages)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if pages[0] != "/TaskReport" {
		t.Fatalf("expected TaskReport to be advertised first, got %v", pages)
	}
	if pages[1] != "/TaskDone" {
		t.Fatalf("expected TaskDone after the run, got %v", pages)
	}
}

func TestSuppressedResultSendsNoTaskDone(t *testing.T) {
	base := t.TempDir() // no extractor configured anywhere

	var mu sync.Mutex
	var pages []string
	s, cleanup := newTestStatus(t, base, "", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	desc := &domain.TaskDescriptor{Kind: domain.KindExtract, ShadowID: "SID-9", Target: "missing"}
	if err := s.StartTask(context.Background(), desc); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for s.InProgress() {
		select {
		case <-deadline:
			t.Fatal("extraction run never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Give a queued TaskDone (which must not exist) a moment to show up.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(pages) != 0 {
		t.Fatalf("expected no requests for a suppressed result, got %v", pages)
	}
}

func TestSlotHeldUntilAbortWrapperFinishes(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "sleep 30\n")
	abortBody := "sleep 1\ntouch \"$SF_REPORT_ROOT/abort-ran\"\n"
	if err := os.WriteFile(filepath.Join(base, "build", "wrapper_abort.sh"), []byte(abortBody), 0o755); err != nil {
		t.Fatal(err)
	}

	s, cleanup := newTestStatus(t, base, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	if err := s.StartTask(context.Background(), execDescriptor("build")); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	// Let the child actually start before aborting it.
	time.Sleep(200 * time.Millisecond)
	s.AbortTask("230101-1200-ABCD", "build")

	deadline := time.After(10 * time.Second)
	for s.InProgress() {
		select {
		case <-deadline:
			t.Fatal("run never released its slot after abort")
		case <-time.After(10 * time.Millisecond):
		}
	}

	marker := filepath.Join(s.env.ReportBaseDir, "abort-ran")
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("slot released before the abort wrapper finished: %v", err)
	}
}

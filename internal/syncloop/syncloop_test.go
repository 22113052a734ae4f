package syncloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/taskrunner/internal/reqqueue"
	"github.com/oriys/taskrunner/internal/runstatus"
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

func newHarness(t *testing.T, wrapperBase string, handler http.HandlerFunc) (*Loop, *reqqueue.Queue, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)

	transport := &reqqueue.Transport{ServerBaseURL: srv.URL, TokenID: "id", TokenPass: "pass"}
	queue := reqqueue.New(transport, 50*time.Millisecond)

	env := taskrun.NewEnv(t.TempDir(), t.TempDir(), "", srv.URL, []string{wrapperBase}, nil, "")
	status := runstatus.New(env, queue, testLog())

	loop := &Loop{
		Host:          "factory-1",
		RunnerVersion: "test",
		Queue:         queue,
		Status:        status,
		Log:           testLog(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx)

	return loop, queue, func() {
		cancel()
		srv.Close()
	}
}

// TestNormalRunScenario drives one <start> with a trailing <wait>,
// expecting exactly one TaskDone with result=ok.
func TestNormalRunScenario(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "echo 'result=ok' > \"$SF_RESULTS\"\n")

	var taskDoneCount atomic.Int32
	var mu sync.Mutex
	var gotQuery string

	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Synchronize":
			fmt.Fprint(w, `<response><start><run jobId="230101-1200-ABCD" taskId="build" runId="0"/><task target="build" framework="f" script="s"/></start><wait seconds="15"/></response>`)
		case "/TaskDone":
			taskDoneCount.Add(1)
			mu.Lock()
			gotQuery = r.URL.RawQuery
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	loop, _, cleanup := newHarness(t, base, handler)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go loop.Run(ctx)

	deadline := time.After(2 * time.Second)
	for taskDoneCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for TaskDone")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if taskDoneCount.Load() != 1 {
		t.Fatalf("expected exactly one TaskDone, got %d", taskDoneCount.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if gotQuery != "id=230101-1200-ABCD&name=build" {
		t.Fatalf("unexpected TaskDone query: %q", gotQuery)
	}
}

// TestExitAfterStartLetsRunFinish checks command ordering: <exit/>
// following <start/> in the same response must not abort the run; the
// loop only stops after processing this response's full command list,
// and the started run still gets to completion.
func TestExitAfterStartLetsRunFinish(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "echo 'result=ok' > \"$SF_RESULTS\"\n")

	var taskDoneCount atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Synchronize":
			fmt.Fprint(w, `<response><start><run jobId="230101-1200-ABCD" taskId="build" runId="0"/><task target="build" framework="f" script="s"/></start><exit/></response>`)
		case "/TaskDone":
			taskDoneCount.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}

	loop, _, cleanup := newHarness(t, base, handler)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after <exit/>")
	}

	deadline := time.After(2 * time.Second)
	for taskDoneCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("started run never reported its result after exit")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestAbortScenario drives a <start> followed on a later sync by
// <abort/>, expecting one TaskDone whose summary begins "Aborted".
func TestAbortScenario(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	writeShellWrapper(t, base, "build", "sleep 30\n")

	var cycle atomic.Int32
	var taskDoneCount atomic.Int32
	var mu sync.Mutex
	var gotSummary string

	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Synchronize":
			n := cycle.Add(1)
			if n == 1 {
				fmt.Fprint(w, `<response><start><run jobId="230101-1200-ABCD" taskId="build" runId="0"/><task target="build" framework="f" script="s"/></start></response>`)
			} else {
				fmt.Fprint(w, `<response><abort jobId="230101-1200-ABCD" taskId="build"/></response>`)
			}
		case "/TaskDone":
			taskDoneCount.Add(1)
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			gotSummary = string(body)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}

	loop, _, cleanup := newHarness(t, base, handler)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go loop.Run(ctx)

	deadline := time.After(4 * time.Second)
	for taskDoneCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for TaskDone after abort")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if taskDoneCount.Load() != 1 {
		t.Fatalf("expected exactly one TaskDone, got %d", taskDoneCount.Load())
	}
	if !containsSummary(gotSummary) {
		t.Fatalf("expected summary beginning with Aborted in body %q", gotSummary)
	}
}

func containsSummary(body string) bool {
	return strings.Contains(body, "summary=Aborted")
}

// TestShadowExtractionScenario checks that an <extract> command runs
// the extractor wrapper and reports back through TaskDone?shadowId=...,
// carrying extraction.result but no locators.
func TestShadowExtractionScenario(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	base := t.TempDir()
	dir := filepath.Join(base, "probe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	extractor := "echo 'extraction.result=ok' > \"$SF_RESULTS\"\necho 'data.metric=42' >> \"$SF_RESULTS\"\n"
	if err := os.WriteFile(filepath.Join(dir, "extractor.sh"), []byte(extractor), 0o755); err != nil {
		t.Fatal(err)
	}

	var taskDoneCount atomic.Int32
	var mu sync.Mutex
	var gotQuery, gotBody string

	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Synchronize":
			fmt.Fprint(w, `<response><extract><shadowrun shadowId="SID-7"/><task target="probe" framework="f" script="s"/></extract><wait seconds="1"/></response>`)
		case "/TaskDone":
			taskDoneCount.Add(1)
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			gotQuery = r.URL.RawQuery
			gotBody = string(body)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}

	loop, _, cleanup := newHarness(t, base, handler)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go loop.Run(ctx)

	deadline := time.After(2 * time.Second)
	for taskDoneCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for extraction TaskDone")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if gotQuery != "shadowId=SID-7" {
		t.Fatalf("unexpected extraction TaskDone query: %q", gotQuery)
	}
	if !strings.Contains(gotBody, "extraction.result=ok") {
		t.Fatalf("expected extraction.result in body %q", gotBody)
	}
	if strings.Contains(gotBody, ".locator=") || strings.Contains(gotBody, "report=") {
		t.Fatalf("extraction report must carry no locators or reports, got %q", gotBody)
	}
}

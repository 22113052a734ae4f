// Package runstatus tracks the agent's single in-flight task run and
// reports its outcome to the coordinator. The run-in-progress slot and
// the TaskDone submission are cleared and enqueued inside the same
// mutex hold, so a concurrent sync request can never observe "no run in
// progress" while the report for that run is still pending delivery.
package runstatus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/reqqueue"
	"github.com/oriys/taskrunner/internal/taskrun"
	"github.com/oriys/taskrunner/internal/wire"
)

// Status owns the agent's at-most-one-run-in-progress slot.
type Status struct {
	mu      sync.Mutex
	current *taskrun.Run
	wake    chan struct{}

	env   *taskrun.Env
	queue *reqqueue.Queue
	log   *slog.Logger
}

// New returns a Status that launches runs against env and reports their
// outcome through queue.
func New(env *taskrun.Env, queue *reqqueue.Queue, log *slog.Logger) *Status {
	return &Status{env: env, queue: queue, log: log, wake: make(chan struct{}, 1)}
}

// Delay blocks for at most d, waking early if a run finishes in the
// meantime: the sync loop uses this for its inter-cycle wait so a
// finished run's report is never held up behind a long server-given
// delay.
func (s *Status) Delay(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wake:
	case <-ctx.Done():
	}
}

// ErrBusy is returned by StartTask when a run is already in progress.
// The coordinator should not send a second <start> while one is
// outstanding; the agent refuses it rather than queuing or clobbering
// the in-flight run.
var ErrBusy = fmt.Errorf("runstatus: a run is already in progress")

// InProgress reports whether a run is currently executing.
func (s *Status) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// WaitIdle blocks until no run is in progress (its result report already
// enqueued) or ctx is cancelled. The sync loop calls this on <exit/> so
// a run started in the same response still completes and reports before
// the request queue is shut down.
func (s *Status) WaitIdle(ctx context.Context) {
	for {
		s.mu.Lock()
		idle := s.current == nil
		s.mu.Unlock()
		if idle {
			return
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}

// CurrentIdentity returns the in-flight run's identity for the sync
// loop's Synchronize request body: a run id for execution/abort runs, a
// shadow id for extraction runs, or (nil, "") when the slot is empty.
// Reading it under the same mutex await holds while clearing the slot
// and enqueuing the report means a sync can never describe a run as
// finished while its report is not yet queued.
func (s *Status) CurrentIdentity() (*domain.RunID, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ""
	}
	desc := s.current.Desc
	if desc.Kind == domain.KindExtract {
		return nil, desc.ShadowID
	}
	run := desc.Run
	return &run, ""
}

// StartTask launches desc as the agent's single in-flight run. It
// returns ErrBusy rather than blocking or queuing if one is already
// running.
func (s *Status) StartTask(ctx context.Context, desc *domain.TaskDescriptor) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrBusy
	}

	// Advertise where this run's reports will land, when a report base
	// URL is configured at all.
	if s.env.ReportBaseURL != "" && desc.Kind == domain.KindExecute {
		url := s.env.ReportBaseURL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		url += path.Join(domain.JobPath(desc.Run.JobID), desc.Run.TaskID) + "/"
		s.queue.Submit(wire.TaskReportRequest(desc.Run.JobID, desc.Run.TaskID, url), discardListener{log: s.log})
	}

	r := taskrun.Start(ctx, s.env, desc)
	s.current = r
	s.mu.Unlock()

	go s.await(r)
	return nil
}

// await joins r — the pipeline and, if an abort was requested, the
// abort's own cleanup — then atomically clears the in-progress slot and
// enqueues its TaskDone report. Joining the abort first keeps a lagging
// abort-wrapper child from overlapping the next run after the slot is
// freed.
func (s *Status) await(r *taskrun.Run) {
	r.WaitForCompletion()
	result := r.Result()

	s.mu.Lock()
	if s.current == r {
		s.current = nil
	}
	req, skip := s.reportRequest(r.Desc, result, r.LogPath())
	if !skip {
		s.queue.Submit(req, discardListener{log: s.log})
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// reportRequest builds the TaskDone request for a finished run. skip is
// true when the result's Ignore code means no report should be sent at
// all.
func (s *Status) reportRequest(desc *domain.TaskDescriptor, result *domain.Result, logPath string) (reqqueue.Request, bool) {
	if result.Suppressed() {
		return reqqueue.Request{}, true
	}
	logFileName := ""
	if logPath != "" {
		logFileName = filepath.Base(logPath)
	}
	if desc.Kind == domain.KindExtract {
		return wire.TaskDoneExtractionRequest(desc.ShadowID, result), false
	}
	if desc.Kind == domain.KindAbort {
		return wire.TaskDoneAbortRequest(desc.Run.JobID, desc.Run.TaskID, result, logFileName), false
	}
	return wire.TaskDoneExecutionRequest(desc.Run.JobID, desc.Run.TaskID, result, logFileName), false
}

// AbortTask requests that the in-progress run for (jobID, taskID) be
// aborted. It is a no-op, not an error, if no run is in progress or the
// in-progress run does not match: an abort racing the run's own natural
// completion is expected, not exceptional.
func (s *Status) AbortTask(jobID, taskID string) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil || r.Desc.Kind == domain.KindExtract {
		return
	}
	if r.Desc.Run.JobID != jobID || r.Desc.Run.TaskID != taskID {
		return
	}
	r.Abort()
}

// AbortShadow requests that the in-progress extraction run for shadowID
// be aborted.
func (s *Status) AbortShadow(shadowID string) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil || r.Desc.Kind != domain.KindExtract || r.Desc.ShadowID != shadowID {
		return
	}
	r.Abort()
}

// discardListener submits a TaskDone report without tying its outcome
// back to anything the caller needs to observe: the report's own
// retry/failure handling lives entirely inside the request queue.
type discardListener struct {
	log *slog.Logger
}

func (d discardListener) ServerReplied(body io.Reader) {}

func (d discardListener) ServerFailed(err error) {
	if d.log != nil {
		d.log.Warn("runstatus: TaskDone report failed permanently", "error", err)
	}
}

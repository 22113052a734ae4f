// Package syncloop drives the coordinator-agent protocol: a single
// cooperative goroutine that posts a Synchronize request, waits for the
// reply (or a permanent failure), and dispatches the ordered command
// stream the coordinator's response carries.
package syncloop

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/metrics"
	"github.com/oriys/taskrunner/internal/observability"
	"github.com/oriys/taskrunner/internal/reqqueue"
	"github.com/oriys/taskrunner/internal/runstatus"
	"github.com/oriys/taskrunner/internal/wire"
)

// DefaultSyncDelay is the delay used after a sync cycle that got no
// usable reply: a permanent request failure or a malformed response.
const DefaultSyncDelay = 10 * time.Second

// Loop is the agent's single sync-loop goroutine.
type Loop struct {
	Host          string
	RunnerVersion string
	Queue         *reqqueue.Queue
	Status        *runstatus.Status
	Log           *slog.Logger
}

// replyBuffer is the one-slot buffer a sync request's listener fills
// before signaling done. It satisfies reqqueue.Listener directly.
type replyBuffer struct {
	once sync.Once
	done chan struct{}
	doc  *responseDoc
}

func newReplyBuffer() *replyBuffer {
	return &replyBuffer{done: make(chan struct{})}
}

func (b *replyBuffer) ServerReplied(body io.Reader) {
	doc, err := parseResponse(body)
	b.once.Do(func() {
		if err == nil {
			b.doc = doc
		}
		close(b.done)
	})
}

func (b *replyBuffer) ServerFailed(err error) {
	b.once.Do(func() {
		b.doc = nil
		close(b.done)
	})
}

var _ reqqueue.Listener = (*replyBuffer)(nil)

// Run drives the sync loop until ctx is cancelled. It returns once an
// <exit/> command has been processed or ctx is done.
func (l *Loop) Run(ctx context.Context) {
	delay := DefaultSyncDelay
	for {
		if ctx.Err() != nil {
			return
		}

		cycleCtx, span := observability.StartSpan(ctx, "syncloop.cycle")
		doc := l.submitAndWait(cycleCtx)

		if doc == nil {
			metrics.Global().RecordSyncCycle(false)
			observability.SetSpanError(span, domain.ErrSyncFailed)
			span.End()
			l.Status.Delay(ctx, DefaultSyncDelay)
			continue
		}
		metrics.Global().RecordSyncCycle(true)
		observability.SetSpanOK(span)
		span.End()

		nextDelay, exit := l.dispatch(ctx, doc)
		delay = nextDelay
		if exit {
			// A run started by this same response still gets to finish
			// and report before the caller shuts the queue down.
			l.Status.WaitIdle(ctx)
			return
		}
		l.Status.Delay(ctx, delay)
	}
}

// submitAndWait posts one Synchronize request and blocks until its
// reply (or permanent failure) arrives. The in-flight run's identity
// comes from the run-status slot at submit time, so a finished run
// stops being described the moment its report has been enqueued.
func (l *Loop) submitAndWait(ctx context.Context) *responseDoc {
	run, shadow := l.Status.CurrentIdentity()
	req := wire.SyncRequest(l.Host, l.RunnerVersion, run, shadow)
	buf := newReplyBuffer()
	l.Queue.Submit(req, buf)

	select {
	case <-buf.done:
		return buf.doc
	case <-ctx.Done():
		return nil
	}
}

// dispatch processes doc's commands in document order: later commands
// do not begin until earlier ones in the same response have finished
// being dispatched, and the last <wait> value wins. It returns the
// delay to use before the next cycle (zero, an immediate resync, when
// the response carries no <wait>) and whether an <exit/> command was
// seen.
func (l *Loop) dispatch(ctx context.Context, doc *responseDoc) (time.Duration, bool) {
	delay := time.Duration(0)
	exit := false

	for _, cmd := range doc.Commands {
		switch c := cmd.(type) {
		case startCmd:
			l.handleStart(ctx, c.desc)
		case extractCmd:
			l.handleStart(ctx, c.desc)
		case abortCmd:
			l.handleAbort(c)
		case waitCmd:
			delay = time.Duration(c.seconds) * time.Second
		case exitCmd:
			delay = 0
			exit = true
		case invalidCmd:
			l.Log.Warn("syncloop: invalid command, probable protocol-version mismatch", "error", c.err)
		}
	}
	return delay, exit
}

func (l *Loop) handleStart(ctx context.Context, desc *domain.TaskDescriptor) {
	if err := l.Status.StartTask(ctx, desc); err != nil {
		l.Log.Warn("syncloop: could not start task", "error", err)
	}
}

func (l *Loop) handleAbort(c abortCmd) {
	if c.shadowID != "" {
		l.Status.AbortShadow(c.shadowID)
		return
	}
	if c.jobID != "" {
		l.Status.AbortTask(c.jobID, c.taskID)
		return
	}
	// A bare <abort/> with no identity targets whatever run is current.
	run, shadow := l.Status.CurrentIdentity()
	if shadow != "" {
		l.Status.AbortShadow(shadow)
	} else if run != nil {
		l.Status.AbortTask(run.JobID, run.TaskID)
	}
}

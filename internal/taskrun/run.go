package taskrun

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/logging"
	"github.com/oriys/taskrunner/internal/metrics"
	"github.com/oriys/taskrunner/internal/observability"
	"github.com/oriys/taskrunner/internal/procrun"
	"github.com/oriys/taskrunner/internal/resultmodel"
	"github.com/oriys/taskrunner/internal/runfactory"
)

const resultsFileName = "results"

// Run is one in-flight task run: the engine's half of the at-most-one-
// run-in-progress invariant runstatus enforces. Start returns
// immediately; the pipeline runs on an internal goroutine and the
// caller learns of completion through Done.
type Run struct {
	Desc *domain.TaskDescriptor

	env       *Env
	log       *logging.RunLogger
	outputDir string

	mu           sync.Mutex
	proc         *procrun.Process
	wrap         *runfactory.Wrapper
	abortOnce    sync.Once
	abortStarted bool
	abortDone    chan struct{}

	done   chan struct{}
	result *domain.Result
}

// Start resolves the wrapper and launches the run's pipeline in the
// background, returning a handle the caller waits on or aborts.
func Start(ctx context.Context, env *Env, desc *domain.TaskDescriptor) *Run {
	r := &Run{
		Desc:      desc,
		env:       env,
		done:      make(chan struct{}),
		abortDone: make(chan struct{}),
	}
	go r.pipeline(ctx)
	return r
}

// Done reports pipeline completion: the run's Result is ready to read
// once this channel is closed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the completed run's outcome. Only valid after Done has
// been closed.
func (r *Run) Result() *domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// LogPath returns the wrapper output log file's path, once the pipeline
// has reached the point of opening it ("" before then).
func (r *Run) LogPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		return ""
	}
	return r.log.Path()
}

func (r *Run) pipeline(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "taskrun.run",
		observability.AttrKind.String(r.Desc.Kind.String()),
		observability.AttrWrapper.String(r.Desc.Wrapper()),
	)
	defer span.End()
	start := time.Now()

	// Correlate this run's log lines with its span so an operator
	// reading the operational log can jump straight to the trace.
	runLog := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx))
	runLog.Info("taskrun: starting", "kind", r.Desc.Kind.String(), "wrapper", r.Desc.Wrapper())

	result, err := r.run(ctx)
	if err != nil {
		if tre, ok := err.(*domain.TaskRunError); ok {
			result = tre.ToResult()
		} else {
			result = (&domain.TaskRunError{Cause: err}).ToResult()
		}
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}

	aborted := r.State() == procrun.StateAborted
	metrics.Global().RecordTaskRun(r.Desc.Kind.String(), string(result.Code), time.Since(start).Milliseconds(), aborted)
	runLog.Info("taskrun: finished", "result", string(result.Code), "aborted", aborted, "duration_ms", time.Since(start).Milliseconds())

	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
	close(r.done)
}

// State reports the underlying child process's lifecycle state, or
// StateFresh if the process has not been launched yet.
func (r *Run) State() procrun.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return procrun.StateFresh
	}
	return r.proc.State()
}

// run executes the pipeline: directory creation, variable tree
// construction, startup script, argv, env deltas, process launch, and
// results conversion.
func (r *Run) run(ctx context.Context) (*domain.Result, error) {
	desc := r.Desc
	env := r.env

	wrap, err := env.Factory.Resolve(desc.Wrapper(), desc.Kind)
	if err != nil {
		if desc.Kind == domain.KindExecute {
			return nil, &domain.TaskRunError{Cause: err}
		}
		// Extraction runs with no extractor configured report nothing.
		res := domain.NewResult()
		res.Code = domain.CodeIgnore
		return res, nil
	}
	r.mu.Lock()
	r.wrap = wrap
	r.mu.Unlock()

	outputDir, productDir := runDirs(desc, env)
	r.outputDir = outputDir
	if err := createRunDirs(ctx, outputDir, productDir); err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}

	resultsFile := filepath.Join(outputDir, resultsFileName)
	root, err := buildVariables(desc, env, filepath.Dir(wrap.Path), outputDir, resultsFile)
	if err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}

	script, err := renderStartupScript(wrap, root)
	if err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}
	startupPath := filepath.Join(outputDir, startupFile(wrap.Lang))
	if err := os.WriteFile(startupPath, []byte(script), 0o755); err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}

	argv := buildArgv(wrap, startupPath, outputDir, env.ProcessWrapper)
	procEnv := append(os.Environ(), flattenEnv(root)...)
	procEnv = append(procEnv, envDeltas(wrap.Lang)...)

	runLog, err := logging.NewRunLogger(filepath.Join(outputDir, "wrapper.log"))
	if err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}
	defer runLog.Close()
	r.mu.Lock()
	r.log = runLog
	r.mu.Unlock()

	proc := procrun.New(ctx, outputDir, argv, procEnv, logging.Op())
	r.mu.Lock()
	aborted := r.abortStarted
	if !aborted {
		r.proc = proc
	}
	r.mu.Unlock()
	// An abort that raced in before the child existed found no process
	// to terminate; honoring it here keeps the launch from happening.
	if aborted {
		res := domain.NewResult()
		res.Code = domain.CodeError
		res.Summary = domain.ErrAborted.Error()
		return res, nil
	}

	if err := proc.Start(runLog); err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}
	proc.Wait()

	if proc.State() == procrun.StateAborted {
		res := domain.NewResult()
		res.Code = domain.CodeError
		res.Summary = domain.ErrAborted.Error()
		return res, nil
	}

	if code := proc.ExitCode(); code != 0 {
		return resultmodel.FromExitCode(code), nil
	}

	if _, err := os.Stat(resultsFile); os.IsNotExist(err) {
		return domain.NewResult(), nil
	}
	res, err := resultmodel.ParseFile(resultsFile)
	if err != nil {
		return nil, &domain.TaskRunError{Cause: err}
	}
	return res, nil
}

// runDirs computes the report- and product-side output directories for
// desc. Extraction runs have no job/task identity to place under, so
// they get a flat shadow-id directory and no product directory at all.
func runDirs(desc *domain.TaskDescriptor, env *Env) (outputDir, productDir string) {
	if desc.Kind == domain.KindExtract {
		return filepath.Join(env.ReportBaseDir, "shadow", desc.ShadowID), ""
	}
	rel := filepath.Join(domain.JobPath(desc.Run.JobID), desc.Run.TaskID)
	return filepath.Join(env.ReportBaseDir, rel), filepath.Join(env.ProductBaseDir, rel)
}

// Abort idempotently terminates the run's child process and, if the
// wrapper directory configures one, concurrently launches its
// "_abort"-flavored companion script. Abort returns immediately; the
// caller joins the abort itself via WaitForCompletion.
func (r *Run) Abort() {
	r.abortOnce.Do(func() {
		r.mu.Lock()
		r.abortStarted = true
		proc := r.proc
		wrap := r.wrap
		r.mu.Unlock()

		go func() {
			defer close(r.abortDone)
			if proc == nil {
				return
			}
			g, ctx := errgroup.WithContext(context.Background())
			g.Go(func() error {
				proc.Abort(r.env.AbortGrace)
				return nil
			})
			if wrap != nil {
				g.Go(func() error {
					r.runAbortWrapper(ctx)
					return nil
				})
			}
			_ = g.Wait()
		}()
	})
}

// runAbortWrapper resolves and launches the "_abort" companion of the
// wrapper that was running, sharing the same output directory and
// environment the main run already built. A missing abort wrapper is
// not an error: most wrappers have none.
func (r *Run) runAbortWrapper(ctx context.Context) {
	abortWrap, err := r.env.Factory.Resolve(r.Desc.Wrapper(), domain.KindAbort)
	if err != nil {
		return
	}
	resultsFile := filepath.Join(r.outputDir, resultsFileName)
	root, err := buildVariables(r.Desc, r.env, filepath.Dir(abortWrap.Path), r.outputDir, resultsFile)
	if err != nil {
		logging.Op().Warn("taskrun: abort wrapper variable tree failed", "error", err)
		return
	}
	script, err := renderStartupScript(abortWrap, root)
	if err != nil {
		logging.Op().Warn("taskrun: abort wrapper render failed", "error", err)
		return
	}
	startupPath := filepath.Join(r.outputDir, "abort_"+startupFile(abortWrap.Lang))
	if err := os.WriteFile(startupPath, []byte(script), 0o755); err != nil {
		logging.Op().Warn("taskrun: abort wrapper write failed", "error", err)
		return
	}
	argv := buildArgv(abortWrap, startupPath, r.outputDir, r.env.ProcessWrapper)
	procEnv := append(os.Environ(), flattenEnv(root)...)
	procEnv = append(procEnv, envDeltas(abortWrap.Lang)...)

	sink := discardSink{}
	proc := procrun.New(ctx, r.outputDir, argv, procEnv, logging.Op())
	if err := proc.Start(sink); err != nil {
		logging.Op().Warn("taskrun: abort wrapper launch failed", "error", err)
		return
	}
	proc.Wait()
}

type discardSink struct{}

func (discardSink) Stdout(string) {}
func (discardSink) Stderr(string) {}

// WaitForCompletion blocks until the run's pipeline has finished and,
// if Abort was invoked, until the abort's own cleanup has finished too.
// runstatus calls this before discarding the run descriptor so a
// concurrent abort never outlives the slot that tracked it.
func (r *Run) WaitForCompletion() {
	<-r.done
	r.mu.Lock()
	started := r.abortStarted
	r.mu.Unlock()
	if started {
		<-r.abortDone
	}
}

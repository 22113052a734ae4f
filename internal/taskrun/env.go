// Package taskrun drives one wrapper invocation end to end: resolving
// the wrapper file, building its environment tree, writing its startup
// script, launching and waiting on the interpreter, and converting the
// outcome into a domain.Result. It owns exactly the process lifecycle;
// reporting the result to the coordinator and serializing "one run at a
// time" are internal/runstatus's job.
package taskrun

import (
	"time"

	"github.com/oriys/taskrunner/internal/runfactory"
)

// Env holds the agent-wide configuration every Run shares: the local
// and coordinator-visible directory layout, the wrapper search path,
// and the arbitrary parameters merged into every wrapper environment.
type Env struct {
	ReportBaseDir    string
	ProductBaseDir   string
	ReportBaseURL    string
	ControlCenterURL string

	Factory    *runfactory.Factory
	Parameters map[string]string

	// ProcessWrapper optionally prepends a supervisor command to every
	// wrapper invocation (e.g. "nice -n 10").
	ProcessWrapper string

	AbortGrace time.Duration
}

// NewEnv builds an Env from the agent's resolved configuration.
func NewEnv(reportBaseDir, productBaseDir, reportBaseURL, controlCenterURL string, wrapperDirs []string, parameters map[string]string, processWrapper string) *Env {
	return &Env{
		ReportBaseDir:    reportBaseDir,
		ProductBaseDir:   productBaseDir,
		ReportBaseURL:    reportBaseURL,
		ControlCenterURL: controlCenterURL,
		Factory:          runfactory.New(wrapperDirs),
		Parameters:       parameters,
		ProcessWrapper:   processWrapper,
		AbortGrace:       10 * time.Second,
	}
}

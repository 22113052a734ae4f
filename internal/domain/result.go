package domain

import "fmt"

// ResultCode is the closed set of task outcome codes. Ignore is never
// produced by the result-file parser, only set programmatically by a
// caller that wants to suppress the TaskDone report.
type ResultCode string

const (
	CodeUnknown ResultCode = "unknown"
	CodeOK      ResultCode = "ok"
	CodeWarning ResultCode = "warning"
	CodeError   ResultCode = "error"
	CodeInspect ResultCode = "inspect"
	CodeIgnore  ResultCode = "ignore"
)

// ParseResultCode validates s against the closed result-code domain. Ignore
// is intentionally excluded: it is never a valid value on the wire.
func ParseResultCode(s string) (ResultCode, error) {
	switch ResultCode(s) {
	case CodeUnknown, CodeOK, CodeWarning, CodeError, CodeInspect:
		return ResultCode(s), nil
	default:
		return "", fmt.Errorf("invalid result code %q", s)
	}
}

// ReportEntry is one priority-ordered report file reference.
type ReportEntry struct {
	Priority uint
	Path     string
}

// Result is a task's outcome: parsed from the results file (see
// internal/resultmodel) and/or synthesized from a wrapper exit code, an
// abort, or a run-time error.
type Result struct {
	Code         ResultCode
	Summary      string
	Reports      []ReportEntry
	Locators     map[string]string // "output."+product -> locator
	Extracted    map[string]string // "data."+key -> value
	ExtractCode  ResultCode
}

// NewResult returns a zero-value Result ready for population.
func NewResult() *Result {
	return &Result{
		Locators:  make(map[string]string),
		Extracted: make(map[string]string),
	}
}

// Suppressed reports whether this result should suppress a TaskDone report
// entirely, per the Ignore extension.
func (r *Result) Suppressed() bool {
	return r.Code == CodeIgnore
}

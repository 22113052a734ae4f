// Package resultmodel parses a task's results file: a line-oriented
// key=value format the wrapper script writes to report its outcome.
package resultmodel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/oriys/taskrunner/internal/domain"
)

var lineRE = regexp.MustCompile(`^\s*([\w.]+)\s*=\s*((?:.*\S)?)\s*$`)

// InvalidSyntax is returned for a line that fails to match the key=value
// grammar. An unknown key or a malformed value for a known key is
// reported as a plain error carrying the line number instead.
type InvalidSyntax struct {
	Line int
	Text string
}

func (e *InvalidSyntax) Error() string {
	return fmt.Sprintf("invalid syntax at line %d: %q", e.Line, e.Text)
}

// ParseFile reads and parses the results file at path. A missing file is
// reported as a plain *os.PathError so callers can distinguish a missing
// result file from a syntax error.
func ParseFile(path string) (*domain.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads key=value lines from r and builds a Result.
func Parse(r io.Reader) (*domain.Result, error) {
	res := domain.NewResult()
	reports := map[uint]string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		m := lineRE.FindStringSubmatch(raw)
		if m == nil {
			return nil, &InvalidSyntax{Line: lineNo, Text: raw}
		}
		key, value := m[1], m[2]

		if err := dispatch(res, reports, key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	res.Reports = make([]domain.ReportEntry, 0, len(reports))
	for pri, path := range reports {
		res.Reports = append(res.Reports, domain.ReportEntry{Priority: pri, Path: path})
	}
	sort.Slice(res.Reports, func(i, j int) bool { return res.Reports[i].Priority < res.Reports[j].Priority })

	return res, nil
}

func dispatch(res *domain.Result, reports map[uint]string, key, value string) error {
	switch {
	case key == "result":
		code, err := domain.ParseResultCode(value)
		if err != nil {
			return err
		}
		res.Code = code

	case key == "summary":
		res.Summary = value

	case key == "extraction.result":
		code, err := domain.ParseResultCode(value)
		if err != nil {
			return err
		}
		res.ExtractCode = code

	case strings.HasPrefix(key, "data."):
		res.Extracted[key] = value

	case key == "report":
		reports[0] = value

	case strings.HasPrefix(key, "report."):
		n, err := strconv.ParseUint(strings.TrimPrefix(key, "report."), 10, 32)
		if err != nil {
			return fmt.Errorf("invalid report priority in %q: %w", key, err)
		}
		reports[uint(n)] = value

	case strings.HasPrefix(key, "output."):
		rest := strings.TrimPrefix(key, "output.")
		product, prop, ok := strings.Cut(rest, ".")
		if !ok {
			return fmt.Errorf("unsupported key %q", key)
		}
		if prop != "locator" {
			return fmt.Errorf("unsupported output property %q", key)
		}
		res.Locators["output."+product] = value

	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// FromExitCode builds the short-circuit error Result for a non-zero
// wrapper exit code; the results file is not consulted in that case.
func FromExitCode(code int) *domain.Result {
	r := domain.NewResult()
	r.Code = domain.CodeError
	r.Summary = fmt.Sprintf("wrapper exit code: %d", code)
	return r
}

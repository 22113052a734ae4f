// Package wire builds the outbound reqqueue.Request values for the
// coordinator's TaskDone and TaskReport endpoints, from a completed
// domain.Result and run identity.
//
// The list-based repeated-key form is used throughout: report entries,
// output locators, and extracted data are all encoded as ordered
// reqqueue.KV pairs, not as a map, so duplicate names are preserved and
// order matches the Result's own order.
// domain.Result stores Extracted keys fully qualified ("data.<key>")
// and Locators keys as "output.<product>" (see internal/resultmodel);
// wire appends the ".locator" property suffix back on for the wire
// form, sorting both maps for deterministic output.
package wire

import (
	"sort"
	"strings"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/reqqueue"
)

// TaskDoneExecutionRequest builds the result-report request for an
// execution run: form POST TaskDone?id=<jobID>&name=<taskID>.
func TaskDoneExecutionRequest(jobID, taskID string, result *domain.Result, logFileName string) reqqueue.Request {
	return reqqueue.Request{
		Page:  "TaskDone",
		Query: []reqqueue.KV{{Name: "id", Value: jobID}, {Name: "name", Value: taskID}},
		Body:  executionBody(result, logFileName),
	}
}

// TaskDoneAbortRequest builds the result-report request for an aborted
// run. Its shape is identical to the execution result.
func TaskDoneAbortRequest(jobID, taskID string, result *domain.Result, logFileName string) reqqueue.Request {
	return TaskDoneExecutionRequest(jobID, taskID, result, logFileName)
}

func executionBody(result *domain.Result, logFileName string) []reqqueue.KV {
	var body []reqqueue.KV
	if result.Code != "" {
		body = append(body, reqqueue.KV{Name: "result", Value: string(result.Code)})
	}
	if result.Summary != "" {
		body = append(body, reqqueue.KV{Name: "summary", Value: result.Summary})
	}
	for _, rep := range reportFiles(result, logFileName) {
		body = append(body, reqqueue.KV{Name: "report", Value: rep})
	}
	for _, kv := range sortedMap(result.Locators) {
		body = append(body, reqqueue.KV{Name: kv.Name + ".locator", Value: kv.Value})
	}
	for _, kv := range sortedMap(result.Extracted) {
		body = append(body, reqqueue.KV{Name: kv.Name, Value: kv.Value})
	}
	return body
}

// reportFiles returns the union of the result's priority-ordered report
// paths and the wrapper's own log file. Reports are emitted in priority
// order; the log file is appended last unless already present.
func reportFiles(result *domain.Result, logFileName string) []string {
	entries := append([]domain.ReportEntry(nil), result.Reports...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })

	seen := make(map[string]bool, len(entries)+1)
	var paths []string
	for _, e := range entries {
		if !seen[e.Path] {
			seen[e.Path] = true
			paths = append(paths, e.Path)
		}
	}
	if logFileName != "" && !seen[logFileName] {
		paths = append(paths, logFileName)
	}
	return paths
}

// TaskDoneExtractionRequest builds the result-report request for an
// extraction (shadow) run: form POST TaskDone?shadowId=<shadowID>.
// Unlike the execution/abort shape, it carries no output locators and
// no report entries.
func TaskDoneExtractionRequest(shadowID string, result *domain.Result) reqqueue.Request {
	var body []reqqueue.KV
	if result.ExtractCode != "" {
		body = append(body, reqqueue.KV{Name: "extraction.result", Value: string(result.ExtractCode)})
	}
	if result.Summary != "" {
		body = append(body, reqqueue.KV{Name: "summary", Value: result.Summary})
	}
	for _, kv := range sortedMap(result.Extracted) {
		body = append(body, reqqueue.KV{Name: kv.Name, Value: kv.Value})
	}
	return reqqueue.Request{
		Page:  "TaskDone",
		Query: []reqqueue.KV{{Name: "shadowId", Value: shadowID}},
		Body:  body,
	}
}

// TaskReportRequest advertises the agent's report base URL at the start
// of a run. This step is optional and guarded by configuration; the
// caller decides whether to send it at all.
func TaskReportRequest(jobID, taskID, reportURL string) reqqueue.Request {
	return reqqueue.Request{
		Page: "TaskReport",
		Query: []reqqueue.KV{
			{Name: "id", Value: jobID},
			{Name: "name", Value: taskID},
		},
		Body: []reqqueue.KV{
			{Name: "url", Value: reportURL},
		},
	}
}

// SyncRequest builds the Synchronize request body for the sync loop's
// polling cycle: an execution/abort poll carries run, an extraction
// poll carries shadowID instead (run is nil in that case).
func SyncRequest(host, runnerVersion string, run *domain.RunID, shadowID string) reqqueue.Request {
	var b strings.Builder
	b.WriteString(`<request host="`)
	b.WriteString(xmlAttrEscape(host))
	b.WriteString(`" runnerVersion="`)
	b.WriteString(xmlAttrEscape(runnerVersion))
	b.WriteString(`">`)
	if shadowID != "" {
		b.WriteString(`<shadowrun shadowId="`)
		b.WriteString(xmlAttrEscape(shadowID))
		b.WriteString(`"/>`)
	} else if run != nil {
		b.WriteString(`<run jobId="`)
		b.WriteString(xmlAttrEscape(run.JobID))
		b.WriteString(`" taskId="`)
		b.WriteString(xmlAttrEscape(run.TaskID))
		b.WriteString(`" runId="`)
		b.WriteString(xmlAttrEscape(run.Run))
		b.WriteString(`"/>`)
	}
	b.WriteString(`</request>`)

	return reqqueue.Request{
		Page:     "Synchronize",
		BodyType: reqqueue.BodyXML,
		RawBody:  b.String(),
	}
}

// xmlAttrEscape escapes the handful of characters that are significant
// inside a double-quoted XML attribute value.
func xmlAttrEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

type namedValue struct {
	Name  string
	Value string
}

// sortedMap returns m's entries sorted by key, for deterministic wire
// output (map iteration order is not stable in Go).
func sortedMap(m map[string]string) []namedValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]namedValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, namedValue{Name: k, Value: m[k]})
	}
	return out
}

package wire

import (
	"strings"
	"testing"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/reqqueue"
)

func TestTaskDoneExecutionRequestShape(t *testing.T) {
	result := domain.NewResult()
	result.Code = domain.CodeOK
	result.Summary = "build passed"
	result.Reports = []domain.ReportEntry{{Priority: 1, Path: "report.xml"}}
	result.Locators["output.jar"] = "products/app.jar"
	result.Extracted["data.version"] = "1.2.3"

	req := TaskDoneExecutionRequest("230101-1200-ABCD", "build", result, "wrapper.log")

	if req.Page != "TaskDone" {
		t.Fatalf("expected page TaskDone, got %q", req.Page)
	}
	if len(req.Query) != 2 || req.Query[0].Name != "id" || req.Query[0].Value != "230101-1200-ABCD" ||
		req.Query[1].Name != "name" || req.Query[1].Value != "build" {
		t.Fatalf("unexpected query: %+v", req.Query)
	}

	var gotResult, gotReport, gotLog, gotLocator, gotData bool
	for _, kv := range req.Body {
		switch {
		case kv.Name == "result" && kv.Value == "ok":
			gotResult = true
		case kv.Name == "report" && kv.Value == "report.xml":
			gotReport = true
		case kv.Name == "report" && kv.Value == "wrapper.log":
			gotLog = true
		case kv.Name == "output.jar.locator" && kv.Value == "products/app.jar":
			gotLocator = true
		case kv.Name == "data.version" && kv.Value == "1.2.3":
			gotData = true
		}
	}
	if !gotResult || !gotReport || !gotLog || !gotLocator || !gotData {
		t.Fatalf("missing expected fields in body: %+v", req.Body)
	}
}

func TestTaskDoneExecutionRequestDedupesLogFileAgainstReports(t *testing.T) {
	result := domain.NewResult()
	result.Reports = []domain.ReportEntry{{Priority: 0, Path: "wrapper.log"}}

	req := TaskDoneExecutionRequest("j", "t", result, "wrapper.log")

	count := 0
	for _, kv := range req.Body {
		if kv.Name == "report" && kv.Value == "wrapper.log" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one report=wrapper.log entry, got %d", count)
	}
}

func TestTaskDoneExtractionRequestHasNoLocatorsOrReports(t *testing.T) {
	result := domain.NewResult()
	result.ExtractCode = domain.CodeOK
	result.Summary = "extracted"
	result.Reports = []domain.ReportEntry{{Priority: 0, Path: "should-not-appear.xml"}}
	result.Locators["output.x"] = "should-not-appear"
	result.Extracted["data.key"] = "value"

	req := TaskDoneExtractionRequest("SID-7", result)

	if req.Page != "TaskDone" {
		t.Fatalf("expected page TaskDone, got %q", req.Page)
	}
	if len(req.Query) != 1 || req.Query[0].Name != "shadowId" || req.Query[0].Value != "SID-7" {
		t.Fatalf("unexpected query: %+v", req.Query)
	}
	for _, kv := range req.Body {
		if kv.Name == "report" || kv.Name == "output.x.locator" || kv.Name == "output.x" {
			t.Fatalf("extraction result must not carry reports or locators, got %+v", kv)
		}
	}

	var gotResult, gotData bool
	for _, kv := range req.Body {
		if kv.Name == "extraction.result" && kv.Value == "ok" {
			gotResult = true
		}
		if kv.Name == "data.key" && kv.Value == "value" {
			gotData = true
		}
	}
	if !gotResult || !gotData {
		t.Fatalf("missing expected fields in extraction body: %+v", req.Body)
	}
}

func TestSyncRequestRunShape(t *testing.T) {
	run := &domain.RunID{JobID: "230101-1200-ABCD", TaskID: "build", Run: "r1"}
	req := SyncRequest("runner-1", "3.2", run, "")

	if req.Page != "Synchronize" {
		t.Fatalf("expected page Synchronize, got %q", req.Page)
	}
	if req.BodyType != reqqueue.BodyXML {
		t.Fatalf("expected BodyXML, got %v", req.BodyType)
	}
	want := `<request host="runner-1" runnerVersion="3.2"><run jobId="230101-1200-ABCD" taskId="build" runId="r1"/></request>`
	if req.RawBody != want {
		t.Fatalf("unexpected body:\ngot:  %s\nwant: %s", req.RawBody, want)
	}
}

func TestSyncRequestShadowShape(t *testing.T) {
	req := SyncRequest("runner-1", "3.2", nil, "SID-7")

	want := `<request host="runner-1" runnerVersion="3.2"><shadowrun shadowId="SID-7"/></request>`
	if req.RawBody != want {
		t.Fatalf("unexpected body:\ngot:  %s\nwant: %s", req.RawBody, want)
	}
}

func TestSyncRequestEscapesAttributes(t *testing.T) {
	req := SyncRequest(`host"with&chars`, "1.0", nil, "SID")
	if !strings.Contains(req.RawBody, `host="host&quot;with&amp;chars"`) {
		t.Fatalf("expected escaped host attribute, got %s", req.RawBody)
	}
}

func TestTaskReportRequest(t *testing.T) {
	req := TaskReportRequest("j", "t", "http://host/reports/j/t")
	if req.Page != "TaskReport" {
		t.Fatalf("expected page TaskReport, got %q", req.Page)
	}
	if req.Body[0].Name != "url" || req.Body[0].Value != "http://host/reports/j/t" {
		t.Fatalf("unexpected body: %+v", req.Body)
	}
}

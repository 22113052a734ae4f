package resultmodel

import (
	"strings"
	"testing"

	"github.com/oriys/taskrunner/internal/domain"
)

func TestParseBasic(t *testing.T) {
	input := strings.Join([]string{
		"# a comment",
		"",
		"result = ok",
		"summary = all good",
		"report = index.html",
		"report.1 = coverage.html",
		"output.binary.locator = /products/a.bin",
		"data.metric.count = 42",
	}, "\n")

	r, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Code != domain.CodeOK {
		t.Errorf("Code = %q, want ok", r.Code)
	}
	if r.Summary != "all good" {
		t.Errorf("Summary = %q", r.Summary)
	}
	if len(r.Reports) != 2 || r.Reports[0].Priority != 0 || r.Reports[0].Path != "index.html" {
		t.Errorf("Reports = %+v", r.Reports)
	}
	if r.Reports[1].Priority != 1 || r.Reports[1].Path != "coverage.html" {
		t.Errorf("Reports[1] = %+v", r.Reports[1])
	}
	if r.Locators["output.binary"] != "/products/a.bin" {
		t.Errorf("Locators = %+v", r.Locators)
	}
	if r.Extracted["data.metric.count"] != "42" {
		t.Errorf("Extracted = %+v", r.Extracted)
	}
}

func TestReportAliasesReportZero(t *testing.T) {
	r1, err := Parse(strings.NewReader("report=x.html\n"))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Parse(strings.NewReader("report.0=x.html\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(r1.Reports) != 1 || len(r2.Reports) != 1 {
		t.Fatalf("expected one report entry each")
	}
	if r1.Reports[0] != r2.Reports[0] {
		t.Errorf("report and report.0 should alias: %+v vs %+v", r1.Reports[0], r2.Reports[0])
	}
}

func TestParseUnknownKeyFails(t *testing.T) {
	if _, err := Parse(strings.NewReader("bogus.key=value\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseUnsupportedOutputPropertyFails(t *testing.T) {
	if _, err := Parse(strings.NewReader("output.thing.color=red\n")); err == nil {
		t.Fatal("expected error for unsupported output property")
	}
}

func TestParseInvalidSyntaxFails(t *testing.T) {
	_, err := Parse(strings.NewReader("this is not key=value shaped !!\n"))
	if err == nil {
		t.Fatal("expected InvalidSyntax error")
	}
	var synErr *InvalidSyntax
	if !asInvalidSyntax(err, &synErr) {
		t.Fatalf("expected *InvalidSyntax, got %T: %v", err, err)
	}
}

func asInvalidSyntax(err error, target **InvalidSyntax) bool {
	if e, ok := err.(*InvalidSyntax); ok {
		*target = e
		return true
	}
	return false
}

func TestParseInvalidResultCodeFails(t *testing.T) {
	if _, err := Parse(strings.NewReader("result=bogus\n")); err == nil {
		t.Fatal("expected error for invalid result code")
	}
}

func TestRoundTrip(t *testing.T) {
	original := domain.NewResult()
	original.Code = domain.CodeWarning
	original.Summary = "partial coverage"
	original.Reports = []domain.ReportEntry{{Priority: 0, Path: "index.html"}, {Priority: 2, Path: "log.txt"}}
	original.Locators["output.artifact"] = "/x/y"
	original.Extracted["data.count"] = "7"

	serialized := Serialize(original)
	roundTripped, err := Parse(strings.NewReader(serialized))
	if err != nil {
		t.Fatalf("Parse(Serialize(...)): %v", err)
	}

	if roundTripped.Code != original.Code || roundTripped.Summary != original.Summary {
		t.Errorf("scalar fields diverged: %+v vs %+v", roundTripped, original)
	}
	if len(roundTripped.Reports) != len(original.Reports) {
		t.Fatalf("report count diverged: %+v vs %+v", roundTripped.Reports, original.Reports)
	}
	for i := range original.Reports {
		if roundTripped.Reports[i] != original.Reports[i] {
			t.Errorf("report[%d] diverged: %+v vs %+v", i, roundTripped.Reports[i], original.Reports[i])
		}
	}
	if roundTripped.Locators["output.artifact"] != "/x/y" {
		t.Errorf("locators diverged: %+v", roundTripped.Locators)
	}
	if roundTripped.Extracted["data.count"] != "7" {
		t.Errorf("extracted diverged: %+v", roundTripped.Extracted)
	}
}

func TestFromExitCode(t *testing.T) {
	r := FromExitCode(3)
	if r.Code != domain.CodeError {
		t.Errorf("Code = %q", r.Code)
	}
	if r.Summary != "wrapper exit code: 3" {
		t.Errorf("Summary = %q", r.Summary)
	}
}

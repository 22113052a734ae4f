package resultmodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oriys/taskrunner/internal/domain"
)

// Serialize renders a Result back into results-file syntax. It is used by
// tests to exercise the parse/serialize round trip, and by wrapper-facing
// test fixtures. Key order is not significant on the read side, but
// Serialize emits a deterministic order to make fixtures reproducible.
func Serialize(r *domain.Result) string {
	var b strings.Builder
	if r.Code != "" {
		fmt.Fprintf(&b, "result=%s\n", r.Code)
	}
	if r.Summary != "" {
		fmt.Fprintf(&b, "summary=%s\n", r.Summary)
	}
	if r.ExtractCode != "" {
		fmt.Fprintf(&b, "extraction.result=%s\n", r.ExtractCode)
	}

	reports := append([]domain.ReportEntry(nil), r.Reports...)
	sort.Slice(reports, func(i, j int) bool { return reports[i].Priority < reports[j].Priority })
	for _, rep := range reports {
		if rep.Priority == 0 {
			fmt.Fprintf(&b, "report=%s\n", rep.Path)
		} else {
			fmt.Fprintf(&b, "report.%d=%s\n", rep.Priority, rep.Path)
		}
	}

	locKeys := sortedKeys(r.Locators)
	for _, k := range locKeys {
		fmt.Fprintf(&b, "%s.locator=%s\n", k, r.Locators[k])
	}

	dataKeys := sortedKeys(r.Extracted)
	for _, k := range dataKeys {
		fmt.Fprintf(&b, "%s=%s\n", k, r.Extracted[k])
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package varenc

import "strings"

// RenderBatch flattens root into Windows batch `set` statements.
func RenderBatch(root *Map) string {
	f := &flattenFormatter{sep: "_", quote: batchQuote, line: batchLine}
	return f.render(Flatten(root))
}

func batchLine(path, value string) string {
	return "set " + path + "=" + value + "\r\n"
}

// batchQuote wraps the value in double quotes only when one of the batch
// redirection/pipe metacharacters is present; otherwise it is left
// unquoted, matching cmd.exe's own treatment of `set NAME=VALUE`.
func batchQuote(s string) string {
	if strings.ContainsAny(s, "&|><^") {
		return `"` + s + `"`
	}
	return s
}

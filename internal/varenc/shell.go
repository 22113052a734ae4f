package varenc

import "strings"

// RenderShell flattens root into POSIX shell variable assignments,
// suitable for `. startup.sh`-style sourcing ahead of the wrapper.
func RenderShell(root *Map) string {
	f := &flattenFormatter{sep: "_", quote: shellQuote, line: shellLine}
	return f.render(Flatten(root))
}

func shellLine(path, value string) string {
	return path + "=" + value + "\n"
}

// shellMetachars are escaped with a backslash rather than wrapping the
// whole value in double quotes, so embedded variable references, if any
// survive from the wrapper's own environment, are not accidentally
// double-escaped.
const shellMetachars = " \t\n\"'\\$`&|;<>(){}*?[]~!#"

func shellQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(shellMetachars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

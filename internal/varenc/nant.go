package varenc

import "strings"

// RenderNAnt flattens root the same way as RenderAnt, but additionally
// rewrites literal "$" to "${'$'}" in values so NAnt's own ${...}
// expansion does not reinterpret task parameter text that happens to
// contain a dollar sign.
func RenderNAnt(root *Map) string {
	f := &flattenFormatter{sep: ".", quote: nantQuote, line: antLine}
	return f.render(Flatten(root))
}

func nantQuote(s string) string {
	return strings.ReplaceAll(xmlEscape(s), "$", "${'$'}")
}

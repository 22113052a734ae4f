package varenc

import "strings"

// RenderPython renders root as Python assignments: every first-level
// entry becomes `NAME = expr`, regardless of its shape; nested sequences
// become `[...]` and nested maps become `{...}` with `'key': value`
// entries.
func RenderPython(root *Map) string {
	return renderTree(root, pythonStyle)
}

var pythonStyle = treeStyle{
	quoteString: pyQuote,
	mapOpen:     "{", mapClose: "}",
	seqOpen: "[", seqClose: "]",
	itemSep: ", ",
	mapEntry: func(quotedKey, value string) string {
		return quotedKey + ": " + value
	},
	declString: pyDecl,
	declMap:    pyDecl,
	declSeq:    pyDecl,
}

func pyDecl(name, literal string) string {
	return name + " = " + literal + "\n"
}

func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

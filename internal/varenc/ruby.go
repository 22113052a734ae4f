package varenc

// RenderRuby renders root as Ruby global assignments: every first-level
// entry becomes `$NAME=expr`; nested sequences become `[...]` and nested
// maps become `{...}` with `'key'=>value` entries.
func RenderRuby(root *Map) string {
	return renderTree(root, rubyStyle)
}

var rubyStyle = treeStyle{
	quoteString: pyQuote,
	mapOpen:     "{", mapClose: "}",
	seqOpen: "[", seqClose: "]",
	itemSep: ", ",
	mapEntry: func(quotedKey, value string) string {
		return quotedKey + "=>" + value
	},
	declString: rubyDecl,
	declMap:    rubyDecl,
	declSeq:    rubyDecl,
}

func rubyDecl(name, literal string) string {
	return "$" + name + "=" + literal + "\n"
}

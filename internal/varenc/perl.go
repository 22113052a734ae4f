package varenc

import "strings"

// RenderPerl renders root as Perl declarations: first-level scalars as
// `our $NAME = 'v';`, first-level maps as `our %NAME=(...);`, first-level
// sequences as `our @NAME=(...);` plus, when every element is a plain
// string, an additional `our $NAME = '...';` alias holding the elements
// space-joined. Nested sequences become `[...]` array refs and nested
// maps `{...}` hash refs.
func RenderPerl(root *Map) string {
	return renderTree(root, perlStyle)
}

var perlStyle = treeStyle{
	quoteString: perlQuote,
	mapOpen:     "(", mapClose: ")",
	seqOpen: "(", seqClose: ")",
	nestedMapOpen: "{", nestedMapClose: "}",
	nestedSeqOpen: "[", nestedSeqClose: "]",
	itemSep: ",",
	mapEntry: func(quotedKey, value string) string {
		return quotedKey + "=>" + value
	},
	declString: func(name, literal string) string {
		return "our $" + name + " = " + literal + ";\n"
	},
	declMap: func(name, literal string) string {
		return "our %" + name + "=" + literal + ";\n"
	},
	declSeq: func(name, literal string) string {
		return "our @" + name + "=" + literal + ";\n"
	},
	extraTopSeq: func(name string, items []string) string {
		return "our $" + name + " = " + perlQuote(strings.Join(items, " ")) + ";\n"
	},
}

func perlQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

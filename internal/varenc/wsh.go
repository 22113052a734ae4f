package varenc

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RenderWSH renders root as JScript declarations, one `var NAME =
// SF_WRAP(expr);` statement per first-level entry. Nested sequences and
// maps use JS array/object literal syntax.
func RenderWSH(root *Map) string {
	return renderTree(root, wshStyle)
}

var wshStyle = treeStyle{
	quoteString: jsQuote,
	mapOpen:     "{", mapClose: "}",
	seqOpen: "[", seqClose: "]",
	itemSep: ", ",
	mapEntry: func(quotedKey, value string) string {
		return quotedKey + ": " + value
	},
	declString: wshDecl,
	declMap:    wshDecl,
	declSeq:    wshDecl,
}

func wshDecl(name, literal string) string {
	return "var " + name + " = SF_WRAP(" + literal + ");\n"
}

func jsQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// sfWrapPrelude defines the SF_WRAP helper that decorates a JScript
// object with VBScript-callable .size()/.get(k) accessors, since
// VBScript has no equivalent of `for ... in` over a JScript object.
const sfWrapPrelude = `function SF_WRAP(v) {
	if (v === null || typeof v !== "object") return v;
	var keys = [];
	for (var k in v) { if (v.hasOwnProperty(k)) keys.push(k); }
	v.size = function() { return keys.length; };
	v.get = function(k) { return v[k]; };
	return v;
}
`

// CommonScripts lists the `.vbs`/`.js` files under base/common, sorted by
// name, for splicing into a WSH wrapper file between the SF_WRAP prelude
// and the wrapper script proper.
func CommonScripts(base string) ([]string, error) {
	dir := filepath.Join(base, "common")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".vbs" || ext == ".js" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LanguageTag maps a script file's extension to its WSF <script>
// language attribute ("VBScript" for .vbs, "JScript" otherwise).
func LanguageTag(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".vbs") {
		return "VBScript"
	}
	return "JScript"
}

// RenderWSF assembles a complete .wsf document: a JScript block holding
// the SF_WRAP prelude and the rendered variable declarations, one
// <script> include per common-dir file, then the wrapper body in its own
// block tagged with wrapperLang — "JScript" or "VBScript" depending on
// which extension the Run Factory resolved.
func RenderWSF(commonDir string, declarations, wrapperBody, wrapperLang string) (string, error) {
	names, err := CommonScripts(commonDir)
	if err != nil {
		return "", err
	}
	if wrapperLang == "" {
		wrapperLang = "JScript"
	}
	var b strings.Builder
	b.WriteString("<job>\n<script language=\"JScript\">\n")
	b.WriteString(sfWrapPrelude)
	b.WriteString(declarations)
	b.WriteString("</script>\n")
	for _, name := range names {
		b.WriteString(`<script language="`)
		b.WriteString(LanguageTag(name))
		b.WriteString(`" src="`)
		b.WriteString(filepath.Join(commonDir, "common", name))
		b.WriteString("\"/>\n")
	}
	b.WriteString(`<script language="`)
	b.WriteString(wrapperLang)
	b.WriteString("\">\n")
	b.WriteString(wrapperBody)
	b.WriteString("\n</script>\n</job>\n")
	return b.String(), nil
}

package varenc

import "strings"

// treeStyle parameterizes the shared nested-literal walker used by the
// tree-shaped emitters (perl, python, ruby, wsh): first-level entries
// become a declaration statement, everything nested becomes a bracket or
// brace literal built bottom-up as the walk closes each scope.
type treeStyle struct {
	quoteString func(string) string

	mapOpen, mapClose string
	seqOpen, seqClose string
	itemSep           string
	mapEntry          func(quotedKey, value string) string

	// nestedMapOpen/nestedSeqOpen override the literal delimiters below
	// the first level, for languages (perl) whose nested collections are
	// references with their own bracket syntax. Empty means the top-level
	// delimiters apply at every depth.
	nestedMapOpen, nestedMapClose string
	nestedSeqOpen, nestedSeqClose string

	declString func(name, literal string) string
	declMap    func(name, literal string) string
	declSeq    func(name, literal string) string

	// extraTopSeq optionally emits an additional declaration when a
	// top-level sequence's elements are all pure strings (perl's scalar
	// alias form). Returns "" to skip.
	extraTopSeq func(name string, items []string) string
}

type treeEntry struct {
	key     string
	isIndex bool
	literal string
}

// treeEmitter is the Emitter for tree-shaped languages. It keeps an
// explicit stack of pending-entry lists — one per currently open
// map/seq — instead of a generic per-node piggyback slot: each Close
// pops its list, renders the bracket/brace literal, and either appends it
// to the new top of stack (nested) or emits the top-level declaration
// line (path length 1).
type treeEmitter struct {
	style treeStyle
	name  string
	stack [][]treeEntry
	out   strings.Builder
}

func newTreeEmitter(name string, style treeStyle) *treeEmitter {
	return &treeEmitter{style: style, name: name}
}

func (t *treeEmitter) OpenMap(path []Segment, node *Map) bool {
	t.stack = append(t.stack, nil)
	return true
}

func (t *treeEmitter) CloseMap(path []Segment, node *Map) {
	entries := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, t.style.mapEntry(t.style.quoteString(e.key), e.literal))
	}
	open, close := t.style.mapOpen, t.style.mapClose
	if len(path) > 1 && t.style.nestedMapOpen != "" {
		open, close = t.style.nestedMapOpen, t.style.nestedMapClose
	}
	literal := open + strings.Join(parts, t.style.itemSep) + close
	t.close(path, literal, t.style.declMap)
}

func (t *treeEmitter) OpenSeq(path []Segment, node *Seq) bool {
	t.stack = append(t.stack, nil)
	return true
}

func (t *treeEmitter) CloseSeq(path []Segment, node *Seq) {
	entries := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.literal
	}
	open, close := t.style.seqOpen, t.style.seqClose
	if len(path) > 1 && t.style.nestedSeqOpen != "" {
		open, close = t.style.nestedSeqOpen, t.style.nestedSeqClose
	}
	literal := open + strings.Join(parts, t.style.itemSep) + close
	t.close(path, literal, t.style.declSeq)

	if len(path) == 1 && t.style.extraTopSeq != nil {
		if items, ok := node.AllStrings(); ok {
			if extra := t.style.extraTopSeq(t.name, items); extra != "" {
				t.out.WriteString(extra)
			}
		}
	}
}

func (t *treeEmitter) EmitString(path []Segment, s string) {
	literal := t.style.quoteString(s)
	t.close(path, literal, t.style.declString)
}

// close is the shared tail of every Close*/EmitString call: either emit a
// top-level declaration (path length 1) or append the literal to the
// parent scope's pending entries.
func (t *treeEmitter) close(path []Segment, literal string, decl func(name, literal string) string) {
	if len(path) == 1 {
		t.out.WriteString(decl(t.name, literal))
		return
	}
	seg := path[len(path)-1]
	key := seg.Key
	if seg.IsIndex {
		key = ""
	}
	top := len(t.stack) - 1
	t.stack[top] = append(t.stack[top], treeEntry{key: key, isIndex: seg.IsIndex, literal: literal})
}

// renderTree runs every first-level entry of root through a tree-shaped
// emitter configured with style, one declaration statement per entry,
// and returns the accumulated declaration text.
func renderTree(root *Map, style treeStyle) string {
	var out strings.Builder
	for _, k := range root.Keys() {
		e := newTreeEmitter(k, style)
		Walk(k, root.Get(k), e)
		out.WriteString(e.out.String())
	}
	return out.String()
}

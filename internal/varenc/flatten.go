package varenc

import (
	"strconv"
	"strings"
)

// FlatEntry is one flattened `<path>=<value>` pair produced by Flatten.
// Keys is true for the synthetic "<path>_KEYS" entries a map node emits
// alongside its children.
type FlatEntry struct {
	Path  []string
	Value string
	Keys  bool
}

// Flatten walks every first-level entry of root and produces the ordered
// list of flattened entries shared by every flattening emitter (shell,
// batch, make, ant, nant). Each first-level key is a complete variable
// name; each language then formats the (Path, Value) pairs with its own
// separator, quoting, and line syntax. The flattening logic itself — map
// insertion order, "<path>_KEYS", space-joined sequences — lives here
// exactly once.
func Flatten(root *Map) []FlatEntry {
	c := &flattenCollector{}
	for _, k := range root.Keys() {
		Walk(k, root.Get(k), c)
	}
	return c.entries
}

// flattenCollector is the Emitter that captures an entire subtree under a
// flattened key, per the "OpenMap/OpenSeq return false" contract: it does
// its own recursion into children rather than letting Walk descend.
type flattenCollector struct {
	entries []FlatEntry
}

func (c *flattenCollector) OpenMap(path []Segment, node *Map) bool {
	p := pathStrings(path)
	keys := node.Keys()
	c.entries = append(c.entries, FlatEntry{Path: p, Value: strings.Join(keys, " "), Keys: true})
	for _, k := range keys {
		c.collect(push(path, Segment{Key: k}), node.Get(k))
	}
	return false
}

func (c *flattenCollector) CloseMap(path []Segment, node *Map) {}

func (c *flattenCollector) OpenSeq(path []Segment, node *Seq) bool {
	c.entries = append(c.entries, FlatEntry{Path: pathStrings(path), Value: joinSeq(node)})
	return false
}

func (c *flattenCollector) CloseSeq(path []Segment, node *Seq) {}

func (c *flattenCollector) EmitString(path []Segment, s string) {
	c.entries = append(c.entries, FlatEntry{Path: pathStrings(path), Value: s})
}

// collect is the manual recursion flattenCollector performs once it has
// claimed a subtree by returning false from OpenMap/OpenSeq.
func (c *flattenCollector) collect(path []Segment, v Value) {
	switch n := v.(type) {
	case String:
		c.EmitString(path, string(n))
	case *Map:
		p := pathStrings(path)
		keys := n.Keys()
		c.entries = append(c.entries, FlatEntry{Path: p, Value: strings.Join(keys, " "), Keys: true})
		for _, k := range keys {
			c.collect(push(path, Segment{Key: k}), n.Get(k))
		}
	case *Seq:
		c.entries = append(c.entries, FlatEntry{Path: pathStrings(path), Value: joinSeq(n)})
	}
}

func joinSeq(s *Seq) string {
	parts := make([]string, 0, len(*s))
	for _, v := range *s {
		if sv, ok := v.(String); ok {
			parts = append(parts, string(sv))
		}
	}
	return strings.Join(parts, " ")
}

func pathStrings(path []Segment) []string {
	out := make([]string, len(path))
	for i, seg := range path {
		if seg.IsIndex {
			out[i] = strconv.Itoa(seg.Index)
			continue
		}
		out[i] = seg.Key
	}
	return out
}

package varenc

// Segment is one entry in the walk's context stack: a map key or a
// non-negative sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Emitter is the per-language visitor invoked by Walk. OpenMap and OpenSeq
// return whether the walker should descend into the node's children;
// flattening emitters return false and recurse themselves so they can
// capture the whole subtree under one flattened key.
type Emitter interface {
	OpenMap(path []Segment, node *Map) bool
	CloseMap(path []Segment, node *Map)
	OpenSeq(path []Segment, node *Seq) bool
	CloseSeq(path []Segment, node *Seq)
	EmitString(path []Segment, s string)
}

// Walk visits root (addressed by the top-level name) with e, preserving
// map insertion order and sequence order.
func Walk(name string, root Value, e Emitter) {
	walk([]Segment{{Key: name}}, root, e)
}

func walk(path []Segment, v Value, e Emitter) {
	switch n := v.(type) {
	case String:
		e.EmitString(path, string(n))
	case *Map:
		if e.OpenMap(path, n) {
			for _, k := range n.Keys() {
				walk(push(path, Segment{Key: k}), n.Get(k), e)
			}
		}
		e.CloseMap(path, n)
	case *Seq:
		if e.OpenSeq(path, n) {
			for i, it := range *n {
				walk(push(path, Segment{Index: i, IsIndex: true}), it, e)
			}
		}
		e.CloseSeq(path, n)
	}
}

// push appends seg to path, always returning a fresh backing array so
// sibling recursive calls never alias each other's slices.
func push(path []Segment, seg Segment) []Segment {
	out := make([]Segment, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

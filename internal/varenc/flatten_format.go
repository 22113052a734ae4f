package varenc

import "strings"

// flattenFormatter renders the output of Flatten into one target
// language's property-assignment syntax. Each flattening emitter (shell,
// batch, make, ant, nant) is this struct configured with its own
// separator, value quoting, and line template.
type flattenFormatter struct {
	sep   string
	quote func(string) string
	line  func(path, value string) string
}

func (f *flattenFormatter) render(entries []FlatEntry) string {
	var b strings.Builder
	for _, e := range entries {
		path := strings.Join(e.Path, f.sep)
		if e.Keys {
			b.WriteString(f.line(path+f.sep+"KEYS", f.quote(e.Value)))
			continue
		}
		b.WriteString(f.line(path, f.quote(e.Value)))
	}
	return b.String()
}

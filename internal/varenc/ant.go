package varenc

// RenderAnt flattens root into a sequence of Ant <property> elements,
// dot-joined, to be embedded in a generated build file.
func RenderAnt(root *Map) string {
	f := &flattenFormatter{sep: ".", quote: xmlEscape, line: antLine}
	return f.render(Flatten(root))
}

func antLine(path, value string) string {
	return `<property name="` + xmlEscape(path) + `" value="` + value + `"/>` + "\n"
}

package varenc

// RenderMake flattens root into GNU Makefile variable assignments, each
// exported so recipe sub-shells inherit it.
func RenderMake(root *Map) string {
	f := &flattenFormatter{sep: "_", quote: shellQuote, line: makeLine}
	return f.render(Flatten(root))
}

func makeLine(path, value string) string {
	return "export " + path + " := " + value + "\n"
}

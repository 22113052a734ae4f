package varenc

import (
	"bytes"
	"encoding/xml"
)

// xmlEscape renders s safe for inclusion inside an XML attribute value.
func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

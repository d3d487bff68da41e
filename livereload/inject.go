package livereload

import (
	"bytes"
)

var closingBody = []byte("</body>")

// injectScript inserts a script tag loading src before the last </body>,
// or appends it when the document has none.
func injectScript(html []byte, src string) []byte {
	tag := []byte(`<script src="` + src + `" async></script>`)
	i := lastIndexFold(html, closingBody)
	if i < 0 {
		return append(html[:len(html):len(html)], tag...)
	}
	out := make([]byte, 0, len(html)+len(tag))
	out = append(out, html[:i]...)
	out = append(out, tag...)
	return append(out, html[i:]...)
}

// lastIndexFold is bytes.LastIndex with ASCII case folding.
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

package render

import (
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes every {{key}} placeholder in tmpl with the value of
// data[key]. A key absent from data leaves the placeholder untouched; a key
// present with a nil value substitutes the empty string. Values are
// stringified with fmt.Sprint. No HTML escaping is performed; template
// content is trusted markup.
func Render(tmpl string, data map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[2 : len(match)-2]

		value, ok := data[key]
		if !ok {
			return match
		}
		if value == nil {
			return ""
		}
		return fmt.Sprint(value)
	})
}

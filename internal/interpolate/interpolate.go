// Package interpolate substitutes stored conversation variables into
// message and payload templates.
package interpolate

import "regexp"

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render replaces every {{name}} token in input with the variable's
// current value. Unknown placeholders are left intact. The template is
// scanned once, so a value that itself contains placeholder text is never
// re-interpolated.
func Render(input string, variables map[string]string) string {
	if len(variables) == 0 || input == "" {
		return input
	}
	return placeholder.ReplaceAllStringFunc(input, func(token string) string {
		name := token[2 : len(token)-2]
		if value, ok := variables[name]; ok {
			return value
		}
		return token
	})
}

package judges

import (
	"fmt"
	"strconv"
	"strings"
)

// sameFamily reports whether the primary family of a CSS font-family
// stack matches the expected family, ignoring case and quotes.
func sameFamily(stack, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return true
	}
	primary, _, _ := strings.Cut(stack, ",")
	return strings.EqualFold(unquote(primary), unquote(expected))
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// NormalizeColor converts #rgb, #rrggbb and rgb()/rgba() values to
// lower-case #rrggbb. Anything else is returned trimmed and lower-cased.
func NormalizeColor(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.HasPrefix(v, "#") && len(v) == 4:
		return "#" + string([]byte{v[1], v[1], v[2], v[2], v[3], v[3]})
	case strings.HasPrefix(v, "rgb"):
		if hex, ok := rgbToHex(v); ok {
			return hex
		}
	}
	return v
}

func rgbToHex(v string) (string, bool) {
	open := strings.IndexByte(v, '(')
	end := strings.LastIndexByte(v, ')')
	if open < 0 || end <= open {
		return "", false
	}
	parts := strings.FieldsFunc(v[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) < 3 {
		return "", false
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		rgb[i] = n
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2]), true
}

// isTransparent reports whether a computed color leaves text invisible.
func isTransparent(color string) bool {
	c := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(color), " ", ""))
	switch c {
	case "", "transparent", "rgba(0,0,0,0)", "initial", "unset":
		return true
	}
	return false
}

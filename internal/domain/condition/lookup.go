package condition

import (
	"strconv"
	"strings"
)

// undefined is returned by lookup when a path segment cannot be resolved,
// distinct from a present-but-nil value.
type undefinedType struct{}

var undefined = undefinedType{}

func isUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// lookup resolves a dot/bracket path against ctx, e.g. "user.roles[0]" or
// "request['team']". A missing segment at any point yields undefined.
func lookup(ctx any, path string) any {
	segments := splitPath(path)
	cur := ctx
	for _, seg := range segments {
		if isUndefined(cur) {
			return undefined
		}
		if idx, err := strconv.Atoi(seg); err == nil {
			list, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return undefined
			}
			cur = list[idx]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return undefined
		}
		v, present := m[seg]
		if !present {
			return undefined
		}
		cur = v
	}
	return cur
}

// splitPath turns "a.b[0].c['d-e']" into ["a", "b", "0", "c", "d-e"].
func splitPath(path string) []string {
	var segs []string
	var buf strings.Builder
	inBracket := false

	flush := func() {
		if buf.Len() > 0 {
			segs = append(segs, buf.String())
			buf.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '.' && !inBracket:
			flush()
		case c == '[':
			flush()
			inBracket = true
		case c == ']':
			inBracket = false
			flush()
		case inBracket && (c == '\'' || c == '"'):
			// skip quote chars inside bracket indices
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return segs
}

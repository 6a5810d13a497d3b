package permission

import (
	"sort"
	"strings"
)

// FormatPattern renders an action invocation as its canonical pattern
// string: name(key1=val1,key2=val2) with keys sorted lexicographically,
// or the bare name when the action takes no arguments. The same argument
// map always produces the same string regardless of insertion order.
func FormatPattern(name string, args map[string]string) string {
	if len(args) == 0 {
		return name
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(args[k])
	}
	b.WriteByte(')')
	return b.String()
}

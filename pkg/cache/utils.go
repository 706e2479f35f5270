package cache

import (
	"fmt"
	"strings"
)

// Key joins a prefix and its parts with ':'.
func Key(prefix string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// BuildPattern creates a Redis pattern for key matching.
func BuildPattern(prefix string) string {
	return prefix + "*"
}

package messages

import (
	"fmt"
	"strings"
)

// List renders lines as "N. line", numbered from 1
func List(header string, lines []string) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

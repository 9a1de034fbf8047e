package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptProxyMode asks on out whether to use the proxy list and reads the
// answer from in. Only "2" selects proxies; anything else, including EOF,
// means direct.
func promptProxyMode(in io.Reader, out io.Writer, proxiesFile string) bool {
	fmt.Fprintln(out, "Select mode:")
	fmt.Fprintln(out, "  1. No proxy")
	fmt.Fprintf(out, "  2. Use proxies from %s\n", proxiesFile)
	fmt.Fprint(out, "Enter choice (1 or 2): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	return strings.TrimSpace(line) == "2"
}

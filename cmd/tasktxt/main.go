// Command tasktxt manages a todo.txt task list from the terminal.
package main

import (
	"fmt"
	"os"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "tasktxt:", err)
		os.Exit(1)
	}
}

// Command heapdom analyzes a heap dump's retention tree.
package main

import (
	"os"

	"github.com/heapdom/retain/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

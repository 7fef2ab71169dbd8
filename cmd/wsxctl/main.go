// Command wsxctl invokes Zato services over WSX and REST channels.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rickgao/zato-client/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

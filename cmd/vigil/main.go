// Command vigil answers and tracks standing queries over published models.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vigil/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vigil:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

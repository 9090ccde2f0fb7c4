// specmatch - GC-MS spectral comparison engine
package main

import (
	"fmt"
	"os"

	"github.com/specmatch/specmatch/cmd/specmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command pintgoctl drives package kernel's simulated filesystem and
// scheduler from outside: format an image, inspect and populate it,
// and run a small demo workload under priority donation. It uses only
// exported APIs: packages block and vfs for the image commands, and
// kernel.Kernel for the demo run.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

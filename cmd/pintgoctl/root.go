package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "pintgoctl",
	Short: "Inspect and drive a pintgo filesystem image",
	Long: `pintgoctl formats and populates a pintgo filesystem image and can
boot its scheduler against a small demo workload. It is a standalone
driver: the image commands use the exported APIs of packages block and
vfs, and run goes through package kernel's exported facade.`,
}

func init() {
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(lnCmd)
	rootCmd.AddCommand(runCmd)
}

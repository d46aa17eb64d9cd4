package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <image> <path>",
	Short: "List a directory's entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, dev, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		root, err := fs.Root()
		if err != nil {
			return err
		}
		defer fs.ReleaseDir(root)

		entries, err := fs.Readdir(args[1], root)
		if err != nil {
			return fmt.Errorf("ls %s: %w", args[1], err)
		}
		for _, name := range entries {
			fmt.Println(name)
		}
		return nil
	},
}

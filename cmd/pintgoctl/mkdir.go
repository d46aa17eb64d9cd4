package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <image> <path>",
	Short: "Create a directory",
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

		if err := fs.Mkdir(args[1], root); err != nil {
			return fmt.Errorf("mkdir %s: %w", args[1], err)
		}
		return nil
	},
}

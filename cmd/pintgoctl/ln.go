package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lnSymbolic bool

var lnCmd = &cobra.Command{
	Use:   "ln <image> <target> <link>",
	Short: "Create a symlink inside the image",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !lnSymbolic {
			return fmt.Errorf("ln: only symbolic links (-s) are supported")
		}
		imagePath, target, linkPath := args[0], args[1], args[2]

		fs, dev, err := openImage(imagePath)
		if err != nil {
			return err
		}
		defer dev.Close()

		root, err := fs.Root()
		if err != nil {
			return err
		}
		defer fs.ReleaseDir(root)

		if err := fs.Symlink(target, linkPath, root); err != nil {
			return fmt.Errorf("ln -s %s %s: %w", target, linkPath, err)
		}
		return nil
	},
}

func init() {
	lnCmd.Flags().BoolVarP(&lnSymbolic, "symbolic", "s", false, "create a symbolic link")
}

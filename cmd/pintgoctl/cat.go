package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/junhokim/pintgo/vfs"
)

var catCmd = &cobra.Command{
	Use:   "cat <image> <path>",
	Short: "Print a file's contents",
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

		h, err := fs.Open(args[1], root)
		if err != nil {
			return fmt.Errorf("cat %s: %w", args[1], err)
		}
		f, ok := h.(*vfs.File)
		if !ok {
			return fmt.Errorf("cat %s: not a file", args[1])
		}
		defer f.Close()

		buf := make([]byte, f.Length())
		if _, err := f.ReadAt(0, buf); err != nil {
			return fmt.Errorf("cat %s: %w", args[1], err)
		}
		_, err = os.Stdout.Write(buf)
		return err
	},
}

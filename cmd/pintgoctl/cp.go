package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/junhokim/pintgo/vfs"
)

var cpCmd = &cobra.Command{
	Use:   "cp <host-file> <image> <path>",
	Short: "Import a host file's bytes into the image",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostPath, imagePath, dstPath := args[0], args[1], args[2]

		payload, err := os.ReadFile(hostPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", hostPath, err)
		}

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

		if err := fs.Create(dstPath, root, uint32(len(payload))); err != nil {
			return fmt.Errorf("create %s: %w", dstPath, err)
		}
		h, err := fs.Open(dstPath, root)
		if err != nil {
			return fmt.Errorf("open %s: %w", dstPath, err)
		}
		f := h.(*vfs.File)
		defer f.Close()

		if _, err := f.WriteAt(0, payload); err != nil {
			return fmt.Errorf("write %s: %w", dstPath, err)
		}
		fmt.Printf("copied %d bytes to %s\n", len(payload), dstPath)
		return nil
	},
}

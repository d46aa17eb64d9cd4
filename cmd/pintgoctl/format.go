package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/vfs"
)

var formatSectors uint32

var formatCmd = &cobra.Command{
	Use:   "format <image>",
	Short: "Lay down a fresh boot record, FAT, and root directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := block.NewFileDevice(args[0], formatSectors)
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer dev.Close()

		if _, err := vfs.Format(dev, formatSectors); err != nil {
			return fmt.Errorf("format: %w", err)
		}
		fmt.Printf("formatted %s (%d sectors)\n", args[0], formatSectors)
		return nil
	},
}

func init() {
	formatCmd.Flags().Uint32Var(&formatSectors, "sectors", 2048, "total sectors in the image")
}

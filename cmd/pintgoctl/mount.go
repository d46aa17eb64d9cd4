package main

import (
	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/vfs"
)

// openImage opens an existing image file and mounts the filesystem on
// it, returning both so the caller can close the device when done.
func openImage(path string) (*vfs.FS, *block.FileDevice, error) {
	dev, err := block.OpenFileDevice(path)
	if err != nil {
		return nil, nil, err
	}
	fs, err := vfs.Mount(dev)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return fs, dev, nil
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package testutils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/stretchr/testify/assert"
)

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// GetImageFileType sniffs the container format of a disk image file.
func GetImageFileType(filePath string) (string, error) {
	file, err := os.OpenFile(filePath, os.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	firstBytes := make([]byte, 512)
	firstBytesCount, err := file.Read(firstBytes)
	if err != nil {
		return "", err
	}

	lastBytes := make([]byte, 512)
	lastBytesCount, err := file.ReadAt(lastBytes, max(0, stat.Size()-512))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	switch {
	case firstBytesCount >= 8 && bytes.Equal(firstBytes[:8], []byte("conectix")):
		return "vhd", nil

	case firstBytesCount >= 4 && bytes.Equal(firstBytes[:4], []byte{'Q', 'F', 'I', 0xfb}):
		return "qcow2", nil

	case firstBytesCount >= 4 && bytes.Equal(firstBytes[:4], []byte("KDMV")):
		return "vmdk", nil

	case firstBytesCount >= 68 && bytes.Equal(firstBytes[64:68], []byte{0x7f, 0x10, 0xda, 0xbe}):
		return "vdi", nil

	case firstBytesCount >= len(xzMagic) && bytes.Equal(firstBytes[:len(xzMagic)], xzMagic):
		return "xz", nil

	// MBR boot signature.
	case firstBytesCount >= 512 && bytes.Equal(firstBytes[510:512], []byte{0x55, 0xAA}):
		switch {
		case lastBytesCount >= 512 && bytes.Equal(lastBytes[:8], []byte("conectix")):
			return "vhd-fixed", nil

		default:
			return "raw", nil
		}

	default:
		return "", fmt.Errorf("unknown file type: %s", filePath)
	}
}

func CheckSkipForRoot(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Test must be run as root because it uses loop devices and mounts")
	}
}

func CheckSkipForTools(t *testing.T, tools ...string) {
	for _, tool := range tools {
		exists, err := file.CommandExists(tool)
		assert.NoError(t, err)
		if !exists {
			t.Skipf("The '%s' command is not available", tool)
		}
	}
}

// CheckSkipForAssembleRequirements skips tests that build a real bootable disk image.
func CheckSkipForAssembleRequirements(t *testing.T, extraTools ...string) {
	CheckSkipForRoot(t)
	CheckSkipForTools(t, "sfdisk", "flock", "losetup", "mkfs.ext4", "blkid", "cp", "grub2-mkimage")
	CheckSkipForTools(t, extraTools...)
}

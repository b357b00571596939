// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package file

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"golang.org/x/sys/unix"
)

type FileCopyBuilder struct {
	Src            string
	Dst            string
	DirFileMode    os.FileMode
	ChangeFileMode bool
	FileMode       os.FileMode
	Sparse         bool
}

func NewFileCopyBuilder(src string, dst string) FileCopyBuilder {
	return FileCopyBuilder{
		Src:            src,
		Dst:            dst,
		DirFileMode:    os.ModePerm,
		ChangeFileMode: false,
		FileMode:       os.ModePerm,
		Sparse:         false,
	}
}

func (b FileCopyBuilder) SetDirFileMode(dirFileMode os.FileMode) FileCopyBuilder {
	b.DirFileMode = dirFileMode
	return b
}

func (b FileCopyBuilder) SetFileMode(fileMode os.FileMode) FileCopyBuilder {
	b.ChangeFileMode = true
	b.FileMode = fileMode
	return b
}

// SetSparse only copies the data regions of the source. Holes in the source stay holes in the destination and the
// destination has the same logical length.
func (b FileCopyBuilder) SetSparse() FileCopyBuilder {
	b.Sparse = true
	return b
}

func (b FileCopyBuilder) Run() (err error) {
	logger.Log.Debugf("Copying (%s) to (%s)", b.Src, b.Dst)

	srcFileInfo, err := os.Stat(b.Src)
	if err != nil {
		return fmt.Errorf("failed to read source file info:\n%w", err)
	}

	if !srcFileInfo.Mode().IsRegular() {
		return fmt.Errorf("source (%s) is not a file", b.Src)
	}

	srcFile, err := os.Open(b.Src)
	if err != nil {
		return fmt.Errorf("failed to open source file:\n%w", err)
	}
	defer srcFile.Close()

	dstFileMode := b.FileMode
	if !b.ChangeFileMode {
		dstFileMode = srcFileInfo.Mode()
	}

	err = CreateDestinationDir(b.Dst, b.DirFileMode)
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(b.Dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, dstFileMode)
	if err != nil {
		return fmt.Errorf("failed to create destination file:\n%w", err)
	}
	defer func() {
		if dstFile != nil {
			dstFile.Close()
		}
	}()

	// The permissions given to OpenFile are subject to umask.
	err = dstFile.Chmod(dstFileMode)
	if err != nil {
		return fmt.Errorf("failed to set destination file permissions:\n%w", err)
	}

	if b.Sparse {
		err = copySparse(dstFile, srcFile, srcFileInfo.Size())
	} else {
		_, err = io.Copy(dstFile, srcFile)
	}
	if err != nil {
		return fmt.Errorf("failed to copy file:\n%w", err)
	}

	err = dstFile.Close()
	dstFile = nil
	if err != nil {
		return fmt.Errorf("failed to finalize destination file:\n%w", err)
	}

	return nil
}

func copySparse(dst *os.File, src *os.File, size int64) error {
	fd := int(src.Fd())

	offset := int64(0)
	for offset < size {
		dataStart, err := unix.Seek(fd, offset, unix.SEEK_DATA)
		if errors.Is(err, unix.ENXIO) {
			// No data past offset.
			break
		}
		if errors.Is(err, unix.EINVAL) && offset == 0 {
			// Filesystem can't report holes.
			_, err = io.Copy(dst, src)
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to find next data region (offset=%d):\n%w", offset, err)
		}

		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			return fmt.Errorf("failed to find next hole (offset=%d):\n%w", dataStart, err)
		}

		section := io.NewSectionReader(src, dataStart, holeStart-dataStart)
		_, err = io.Copy(io.NewOffsetWriter(dst, dataStart), section)
		if err != nil {
			return err
		}

		offset = holeStart
	}

	return dst.Truncate(size)
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package file

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/sirupsen/logrus"
)

type ReflinkMode string

const (
	ReflinkModeNever  ReflinkMode = "never"
	ReflinkModeAuto   ReflinkMode = "auto"
	ReflinkModeAlways ReflinkMode = "always"
)

// DirCopyBuilder copies the contents of a directory (not the directory itself) into another directory using 'cp'.
type DirCopyBuilder struct {
	// Source directory
	Src string
	// Destination directory. Must already exist.
	Dst string
	// Preserve ownership, permissions, timestamps, links, xattrs and device nodes ('cp -a').
	PreserveAll bool
	Reflink     ReflinkMode
}

func NewDirCopyBuilder(src string, dst string) DirCopyBuilder {
	return DirCopyBuilder{
		Src:         src,
		Dst:         dst,
		PreserveAll: true,
		Reflink:     ReflinkModeAuto,
	}
}

func (b DirCopyBuilder) SetReflink(mode ReflinkMode) DirCopyBuilder {
	b.Reflink = mode
	return b
}

func (b DirCopyBuilder) SetPreserveAll(preserveAll bool) DirCopyBuilder {
	b.PreserveAll = preserveAll
	return b
}

func (b DirCopyBuilder) args() []string {
	args := []string(nil)
	if b.PreserveAll {
		args = append(args, "-a")
	} else {
		args = append(args, "-r")
	}

	if b.Reflink != "" {
		args = append(args, fmt.Sprintf("--reflink=%s", b.Reflink))
	}

	// The trailing "/." copies the directory's contents, including hidden entries.
	args = append(args, filepath.Clean(b.Src)+"/.", b.Dst)
	return args
}

func (b DirCopyBuilder) Run(ctx context.Context) error {
	isDir, err := DirExists(b.Src)
	if err != nil {
		return fmt.Errorf("failed to access source directory (%s):\n%w", b.Src, err)
	}
	if !isDir {
		return fmt.Errorf("source (%s) is not a directory", b.Src)
	}

	err = shell.NewExecBuilder("cp", b.args()...).
		Context(ctx).
		LogLevel(logrus.TraceLevel, logrus.WarnLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to copy directory contents (%s) to (%s):\n%w", b.Src, b.Dst, err)
	}

	return nil
}

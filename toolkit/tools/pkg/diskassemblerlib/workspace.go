// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/safemount"
)

const (
	workspacePattern = "diskassembler-"

	rawImageName  = "disk.raw"
	coreImageName = "grub2.img"
	treeDirName   = "tree"
	mountDirName  = "mnt"
)

// Workspace is a scratch directory unique to one assembler invocation.
type Workspace struct {
	dir    string
	policy diskassemblerapi.ScratchPolicy
}

func NewWorkspace(buildDir string, policy diskassemblerapi.ScratchPolicy) (*Workspace, error) {
	err := os.MkdirAll(buildDir, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("%w (dir='%s'):\n%w", ErrWorkspace, buildDir, err)
	}

	dir, err := os.MkdirTemp(buildDir, workspacePattern)
	if err != nil {
		return nil, fmt.Errorf("%w (dir='%s'):\n%w", ErrWorkspace, buildDir, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w (dir='%s'):\n%w", ErrWorkspace, dir, err)
	}

	logger.Log.Debugf("Workspace: %s", absDir)

	return &Workspace{
		dir:    absDir,
		policy: policy,
	}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) RawImagePath() string {
	return filepath.Join(w.dir, rawImageName)
}

func (w *Workspace) CoreImagePath() string {
	return filepath.Join(w.dir, coreImageName)
}

func (w *Workspace) TreeDir() string {
	return filepath.Join(w.dir, treeDirName)
}

func (w *Workspace) MountDir() string {
	return filepath.Join(w.dir, mountDirName)
}

// Close removes the workspace when the scratch policy asks for it. A workspace that still has something mounted in
// it is never removed.
func (w *Workspace) Close(succeeded bool) {
	if !w.policy.ShouldRemove(succeeded) {
		logger.Log.Infof("Keeping workspace (%s)", w.dir)
		return
	}

	for _, mountPath := range []string{w.TreeDir(), w.MountDir()} {
		exists, err := file.PathExists(mountPath)
		if err != nil {
			logger.Log.Warnf("Failed to check mount state of (%s):\n%v", mountPath, err)
			return
		}
		if !exists {
			continue
		}

		mounted, err := safemount.IsMounted(mountPath)
		if err != nil {
			logger.Log.Warnf("Failed to check mount state of (%s):\n%v", mountPath, err)
			return
		}
		if mounted {
			logger.Log.Warnf("Not removing workspace (%s): (%s) is still mounted", w.dir, mountPath)
			return
		}
	}

	err := os.RemoveAll(w.dir)
	if err != nil {
		logger.Log.Warnf("Failed to remove workspace (%s):\n%v", w.dir, err)
		return
	}

	logger.Log.Debugf("Removed workspace (%s)", w.dir)
}

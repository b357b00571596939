// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"fmt"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/checksum"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/loopback"
)

const (
	DefaultGrubModuleDir = "/usr/lib/grub/i386-pc"
)

type AssembleOptions struct {
	// Parent of the per-invocation workspace.
	BuildDir string
	// Unix socket of the loop broker daemon. When empty, loop devices are attached in-process with losetup.
	LoopBrokerSocket string
	ScratchPolicy    diskassemblerapi.ScratchPolicy
	// Directory with GRUB's i386-pc modules and boot.img.
	GrubModuleDir     string
	ChecksumAlgorithm checksum.Algorithm

	// Overrides for embedding and tests.
	Broker          loopback.Broker
	LoaderGenerator LoaderGenerator
}

func (o *AssembleOptions) IsValid() error {
	if o.BuildDir == "" {
		return fmt.Errorf("build directory must be specified")
	}

	err := o.ScratchPolicy.IsValid()
	if err != nil {
		return err
	}

	if o.ChecksumAlgorithm != "" {
		err = o.ChecksumAlgorithm.IsValid()
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *AssembleOptions) broker() loopback.Broker {
	switch {
	case o.Broker != nil:
		return o.Broker

	case o.LoopBrokerSocket != "":
		return loopback.NewSocketBroker(o.LoopBrokerSocket)

	default:
		return loopback.LosetupBroker{}
	}
}

func (o *AssembleOptions) loaderGenerator() LoaderGenerator {
	if o.LoaderGenerator != nil {
		return o.LoaderGenerator
	}

	moduleDir := o.GrubModuleDir
	if moduleDir == "" {
		moduleDir = DefaultGrubModuleDir
	}
	return NewGrubLoaderGenerator(moduleDir)
}

func (o *AssembleOptions) checksumAlgorithm() checksum.Algorithm {
	if o.ChecksumAlgorithm == "" {
		return checksum.DefaultAlgorithm
	}
	return o.ChecksumAlgorithm
}

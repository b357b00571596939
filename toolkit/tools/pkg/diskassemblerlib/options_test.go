// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"testing"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/checksum"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/loopback"
	"github.com/stretchr/testify/assert"
)

func TestAssembleOptionsDefaults(t *testing.T) {
	options := AssembleOptions{BuildDir: "/build"}
	assert.NoError(t, options.IsValid())

	assert.Equal(t, loopback.LosetupBroker{}, options.broker())
	assert.Equal(t, checksum.AlgorithmSha256, options.checksumAlgorithm())

	generator, ok := options.loaderGenerator().(*GrubLoaderGenerator)
	assert.True(t, ok)
	assert.Equal(t, DefaultGrubModuleDir, generator.ModuleDir)
}

func TestAssembleOptionsOverrides(t *testing.T) {
	fakeGenerator := &fakeLoaderGenerator{}
	fakeBroker := &failingBroker{}

	options := AssembleOptions{
		BuildDir:          "/build",
		GrubModuleDir:     "/opt/grub",
		ChecksumAlgorithm: checksum.AlgorithmSha512,
		LoopBrokerSocket:  "/run/test.sock",
	}
	assert.NoError(t, options.IsValid())
	assert.Equal(t, checksum.AlgorithmSha512, options.checksumAlgorithm())
	assert.Equal(t, "/opt/grub", options.loaderGenerator().(*GrubLoaderGenerator).ModuleDir)

	socketBroker, ok := options.broker().(*loopback.SocketBroker)
	assert.True(t, ok)
	assert.Equal(t, "/run/test.sock", socketBroker.SocketPath())

	options.Broker = fakeBroker
	options.LoaderGenerator = fakeGenerator
	assert.Equal(t, fakeBroker, options.broker())
	assert.Equal(t, fakeGenerator, options.loaderGenerator())
}

func TestAssembleOptionsInvalidChecksumAlgorithm(t *testing.T) {
	options := AssembleOptions{BuildDir: "/build", ChecksumAlgorithm: "crc32"}
	assert.Error(t, options.IsValid())
}

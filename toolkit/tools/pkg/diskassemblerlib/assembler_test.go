// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/checksum"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/loopback"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPtUuid     = "0x14fc63d2"
	testRootFsUuid = "76a22bf4-f153-4541-b6c7-0332c0dfaeac"
)

// failingBroker records every acquire attempt and refuses it.
type failingBroker struct {
	acquired []string
}

func (b *failingBroker) Acquire(ctx context.Context, backingFilePath string, byteRange *loopback.Range,
) (*loopback.Lease, error) {
	b.acquired = append(b.acquired, backingFilePath)
	return nil, errors.New("no loop devices in tests")
}

func createTestTree(t *testing.T) string {
	treeDir := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(treeDir, "etc"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(treeDir, "etc", "hostname"), []byte("assembled\n"), 0o644))
	return treeDir
}

func testRequest(t *testing.T, format diskassemblerapi.FormatKind, size uint64) *diskassemblerapi.Request {
	return &diskassemblerapi.Request{
		Tree:      createTestTree(t),
		OutputDir: filepath.Join(t.TempDir(), "out"),
		Options: diskassemblerapi.ImageSpec{
			Format:     format,
			Filename:   "disk.img",
			PtUuid:     testPtUuid,
			RootFsUuid: testRootFsUuid,
			Size:       size,
		},
	}
}

func TestAssembleRejectsInvalidSizeWithoutSideEffects(t *testing.T) {
	buildDir := filepath.Join(tmpDir, "TestAssembleRejectsInvalidSizeWithoutSideEffects")
	broker := &failingBroker{}

	request := testRequest(t, diskassemblerapi.FormatKindQcow2, 1000)

	_, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir: buildDir,
		Broker:   broker,
	})
	assert.ErrorIs(t, err, ErrInvalidOption)
	assert.ErrorContains(t, err, "invalid 'size' (1000)")

	assert.NoDirExists(t, buildDir)
	assert.NoDirExists(t, request.OutputDir)
	assert.Empty(t, broker.acquired)
}

func TestAssembleRejectsUnknownFormat(t *testing.T) {
	buildDir := filepath.Join(tmpDir, "TestAssembleRejectsUnknownFormat")

	request := testRequest(t, "iso", 1024*1024)

	_, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir: buildDir,
		Broker:   &failingBroker{},
	})
	assert.ErrorIs(t, err, ErrInvalidOption)
	assert.ErrorContains(t, err, "invalid format (iso)")
	assert.NoDirExists(t, buildDir)
}

func TestAssembleRejectsInvalidOptions(t *testing.T) {
	request := testRequest(t, diskassemblerapi.FormatKindRaw, 1024*1024)

	_, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir:      filepath.Join(tmpDir, "TestAssembleRejectsInvalidOptions"),
		ScratchPolicy: "sometimes",
	})
	assert.ErrorIs(t, err, ErrInvalidOption)
	assert.ErrorContains(t, err, "invalid scratch policy (sometimes)")

	_, err = Assemble(context.Background(), request, AssembleOptions{})
	assert.ErrorIs(t, err, ErrInvalidOption)
	assert.ErrorContains(t, err, "build directory must be specified")
}

func TestAssembleBootloaderTooLarge(t *testing.T) {
	testutils.CheckSkipForTools(t, "sfdisk", "flock")

	buildDir := filepath.Join(tmpDir, "TestAssembleBootloaderTooLarge")
	broker := &failingBroker{}

	// sfdisk places the partition at 1 MiB.
	generator := &fakeLoaderGenerator{coreImageSize: 2 * 1024 * 1024}

	request := testRequest(t, diskassemblerapi.FormatKindRaw, 16*1024*1024)

	_, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir:        buildDir,
		ScratchPolicy:   diskassemblerapi.ScratchPolicyNever,
		Broker:          broker,
		LoaderGenerator: generator,
	})
	assert.ErrorIs(t, err, ErrBootloaderTooLarge)
	assert.Empty(t, broker.acquired)
	assert.Equal(t, []string{"ext2"}, generator.fsModules)
	assert.NoFileExists(t, request.OutputPath())

	// Nothing was written into the boot code area.
	rawImages, err := filepath.Glob(filepath.Join(buildDir, "diskassembler-*", "disk.raw"))
	require.NoError(t, err)
	require.Len(t, rawImages, 1)

	rawImage, err := os.Open(rawImages[0])
	require.NoError(t, err)
	defer rawImage.Close()

	bootCode := make([]byte, diskutils.MbrBootCodeSize)
	_, err = rawImage.ReadAt(bootCode, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, diskutils.MbrBootCodeSize), bootCode)
}

func TestAssembleLeaseFailureRemovesWorkspace(t *testing.T) {
	testutils.CheckSkipForTools(t, "sfdisk", "flock")

	buildDir := filepath.Join(tmpDir, "TestAssembleLeaseFailureRemovesWorkspace")
	broker := &failingBroker{}

	request := testRequest(t, diskassemblerapi.FormatKindRaw, 16*1024*1024)
	request.Options.RootFsType = diskassemblerapi.FsKindXfs

	_, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir:        buildDir,
		Broker:          broker,
		LoaderGenerator: &fakeLoaderGenerator{coreImageSize: 32 * 1024},
	})
	assert.ErrorIs(t, err, ErrDeviceLease)
	assert.Len(t, broker.acquired, 1)

	workspaces, err := filepath.Glob(filepath.Join(buildDir, "diskassembler-*"))
	require.NoError(t, err)
	assert.Empty(t, workspaces)
}

func TestAssembleWithRequestFileResolvesRelativePaths(t *testing.T) {
	requestDir := t.TempDir()

	requestFile := filepath.Join(requestDir, "request.yaml")
	require.NoError(t, os.WriteFile(requestFile, []byte(`
tree: missing-tree
output_dir: out
options:
  format: qcow2
  filename: disk.qcow2
  ptuuid: "0x14fc63d2"
  root_fs_uuid: 76a22bf4-f153-4541-b6c7-0332c0dfaeac
  size: 1048576
`), 0o644))

	buildDir := filepath.Join(tmpDir, "TestAssembleWithRequestFileResolvesRelativePaths")

	_, err := AssembleWithRequestFile(context.Background(), requestFile, AssembleOptions{
		BuildDir: buildDir,
	})
	assert.ErrorIs(t, err, ErrInvalidOption)
	assert.ErrorContains(t, err, "invalid 'tree' field ("+filepath.Join(requestDir, "missing-tree")+")")
	assert.NoDirExists(t, buildDir)
}

func TestAssembleWithRequestFileUnknownField(t *testing.T) {
	requestFile := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(requestFile, []byte(`{"tree": "tree", "output_dir": "out", "extra": 1}`),
		0o644))

	_, err := AssembleWithRequestFile(context.Background(), requestFile, AssembleOptions{
		BuildDir: filepath.Join(tmpDir, "TestAssembleWithRequestFileUnknownField"),
	})
	assert.ErrorIs(t, err, ErrInvalidRequestFile)
	assert.ErrorContains(t, err, "field extra not found")
}

func TestAssembleFull(t *testing.T) {
	testutils.CheckSkipForAssembleRequirements(t, "mkfs.ext4")

	if _, err := os.Stat(filepath.Join(DefaultGrubModuleDir, "boot.img")); err != nil {
		t.Skipf("GRUB i386-pc modules are not installed (%s)", DefaultGrubModuleDir)
	}

	buildDir := filepath.Join(tmpDir, "TestAssembleFull")
	request := testRequest(t, diskassemblerapi.FormatKindRaw, 64*1024*1024)

	result, err := Assemble(context.Background(), request, AssembleOptions{
		BuildDir: buildDir,
	})
	require.NoError(t, err)

	assert.Equal(t, request.OutputPath(), result.Path)
	assert.Equal(t, diskassemblerapi.FormatKindRaw, result.Format)
	assert.Equal(t, uint64(64*1024*1024), result.Size)
	assert.NoError(t, checksum.VerifyFile(result.Path, result.Checksum))

	err = diskutils.VerifyMbr(result.Path, 0x14fc63d2, 1024*1024, 63*1024*1024)
	assert.NoError(t, err)

	workspaces, err := filepath.Glob(filepath.Join(buildDir, "diskassembler-*"))
	require.NoError(t, err)
	assert.Empty(t, workspaces)
}

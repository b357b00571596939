// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoaderGenerator produces recognizable boot stages without GRUB.
type fakeLoaderGenerator struct {
	coreImageSize int
	fsModules     []string
}

func (g *fakeLoaderGenerator) BootSectorTemplate(ctx context.Context) ([]byte, error) {
	return bytes.Repeat([]byte{0xEB}, diskutils.SectorSize), nil
}

func (g *fakeLoaderGenerator) GenerateCoreImage(ctx context.Context, fsModule string, outputPath string) error {
	g.fsModules = append(g.fsModules, fsModule)
	return os.WriteFile(outputPath, bytes.Repeat([]byte{0xC0}, g.coreImageSize), 0o644)
}

// createTestDisk returns a disk file whose partition table area is filled with a marker.
func createTestDisk(t *testing.T, size int) string {
	diskPath := filepath.Join(t.TempDir(), "disk.raw")
	content := make([]byte, size)
	for i := diskutils.MbrBootCodeSize; i < diskutils.SectorSize; i++ {
		content[i] = 0x7A
	}
	require.NoError(t, os.WriteFile(diskPath, content, 0o644))
	return diskPath
}

func TestWriteBootRecord(t *testing.T) {
	const partitionOffset = 8 * diskutils.SectorSize

	diskPath := createTestDisk(t, 16*diskutils.SectorSize)
	bootSector := bytes.Repeat([]byte{0xEB}, diskutils.SectorSize)
	coreImage := bytes.Repeat([]byte{0xC0}, 3*diskutils.SectorSize+17)

	err := writeBootRecord(diskPath, bootSector, coreImage, partitionOffset)
	require.NoError(t, err)

	content, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	require.Len(t, content, 16*diskutils.SectorSize)

	assert.Equal(t, bootSector[:diskutils.MbrBootCodeSize], content[:diskutils.MbrBootCodeSize])
	assert.Equal(t, bytes.Repeat([]byte{0x7A}, diskutils.SectorSize-diskutils.MbrBootCodeSize),
		content[diskutils.MbrBootCodeSize:diskutils.SectorSize])
	assert.Equal(t, coreImage, content[diskutils.SectorSize:diskutils.SectorSize+len(coreImage)])
	assert.Equal(t, make([]byte, partitionOffset-diskutils.SectorSize-len(coreImage)),
		content[diskutils.SectorSize+len(coreImage):partitionOffset])
}

func TestWriteBootRecordTooLarge(t *testing.T) {
	const partitionOffset = 8 * diskutils.SectorSize

	diskPath := createTestDisk(t, 16*diskutils.SectorSize)
	before, err := os.ReadFile(diskPath)
	require.NoError(t, err)

	bootSector := bytes.Repeat([]byte{0xEB}, diskutils.SectorSize)

	// The core image must be strictly smaller than the gap.
	coreImage := make([]byte, partitionOffset-diskutils.SectorSize)

	err = writeBootRecord(diskPath, bootSector, coreImage, partitionOffset)
	assert.ErrorIs(t, err, ErrBootloaderTooLarge)
	assert.ErrorContains(t, err, "core image size=3584, space available=3584")

	after, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteBootRecordLargestCoreImage(t *testing.T) {
	const partitionOffset = 8 * diskutils.SectorSize

	diskPath := createTestDisk(t, 16*diskutils.SectorSize)
	bootSector := bytes.Repeat([]byte{0xEB}, diskutils.SectorSize)
	coreImage := bytes.Repeat([]byte{0xC0}, partitionOffset-diskutils.SectorSize-1)

	err := writeBootRecord(diskPath, bootSector, coreImage, partitionOffset)
	assert.NoError(t, err)
}

func TestWriteBootRecordShortTemplate(t *testing.T) {
	diskPath := createTestDisk(t, 16*diskutils.SectorSize)

	err := writeBootRecord(diskPath, make([]byte, 100), make([]byte, 10), 8*diskutils.SectorSize)
	assert.ErrorIs(t, err, ErrBootRecord)
}

func TestGrubMkimageArgs(t *testing.T) {
	args := grubMkimageArgs("/usr/lib/grub/i386-pc", "xfs", "/build/grub2.img")
	assert.Equal(t, []string{
		"--verbose",
		"--directory", "/usr/lib/grub/i386-pc",
		"--prefix", "(,msdos1)/boot/grub2",
		"--format", "i386-pc",
		"--compression", "auto",
		"--output", "/build/grub2.img",
		"part_msdos", "xfs", "biosdisk",
	}, args)
}

func TestGrubLoaderGeneratorBootSectorTemplate(t *testing.T) {
	moduleDir := t.TempDir()
	generator := NewGrubLoaderGenerator(moduleDir)

	_, err := generator.BootSectorTemplate(context.Background())
	assert.ErrorContains(t, err, "failed to read GRUB boot image")

	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "boot.img"), make([]byte, 100), 0o644))
	_, err = generator.BootSectorTemplate(context.Background())
	assert.ErrorContains(t, err, "is (100) bytes, expected (512)")

	template := bytes.Repeat([]byte{0x33}, diskutils.SectorSize)
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "boot.img"), template, 0o644))
	bootSector, err := generator.BootSectorTemplate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, template, bootSector)
}

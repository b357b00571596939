// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskutils

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const MiB = 1024 * KiB

func TestMain(m *testing.M) {
	logger.InitStderrLog()
	os.Exit(m.Run())
}

const sfdiskJson = `{
   "partitiontable": {
      "label": "dos",
      "id": "0x14fc63d2",
      "device": "/tmp/disk.img",
      "unit": "sectors",
      "sectorsize": 512,
      "partitions": [
         {
            "node": "/tmp/disk.img1",
            "start": 2048,
            "size": 202752,
            "type": "83",
            "bootable": true
         }
      ]
   }
}`

func TestParsePartitionTable(t *testing.T) {
	table, err := parsePartitionTable(sfdiskJson)
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.Equal(t, MbrLabel, table.Label)
	assert.Equal(t, "0x14fc63d2", table.Id)
	require.Len(t, table.Partitions, 1)

	partition := table.Partitions[0]
	assert.True(t, partition.Bootable)
	assert.Equal(t, LinuxMbrPartitionType, partition.Type)

	offset, size := partition.ByteRange(table.SectorSize)
	assert.Equal(t, uint64(1048576), offset)
	assert.Equal(t, uint64(103809024), size)
}

func TestParsePartitionTableEmpty(t *testing.T) {
	table, err := parsePartitionTable("")
	assert.NoError(t, err)
	assert.Nil(t, table)

	table, err = parsePartitionTable("{}")
	assert.NoError(t, err)
	assert.Nil(t, table)
}

func TestParsePartitionTableBadUnit(t *testing.T) {
	_, err := parsePartitionTable(`{"partitiontable": {"label": "dos", "unit": "bytes"}}`)
	assert.ErrorContains(t, err, "unexpected unit size 'bytes'")
}

func TestParsePartitionTableDefaultsSectorSize(t *testing.T) {
	table, err := parsePartitionTable(`{"partitiontable": {"label": "dos", "unit": "sectors", "partitions": []}}`)
	assert.NoError(t, err)
	assert.Equal(t, SectorSize, table.SectorSize)
}

func TestMbrPartitionTableScript(t *testing.T) {
	assert.Equal(t, "label: mbr\nlabel-id: 0x14fc63d2\nbootable, type=83\n", MbrPartitionTableScript("0x14fc63d2"))
}

func TestCreateSparseDisk(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.img")

	err := CreateSparseDisk(diskPath, 10*MiB+512, 0o644)
	require.NoError(t, err)

	size, err := file.Size(diskPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(10*MiB+512), size)
}

func TestParseToolVersion(t *testing.T) {
	v, err := parseToolVersion("mke2fs", mke2fsVersionRegex, "mke2fs 1.47.0 (5-Feb-2023)\n\tUsing EXT2FS Library version 1.47.0\n")
	assert.NoError(t, err)
	assert.Equal(t, version.Version{1, 47, 0}, v)

	v, err = parseToolVersion("mkfs.xfs", mkfsXfsVersionRegex, "mkfs.xfs version 6.5.0\n")
	assert.NoError(t, err)
	assert.Equal(t, version.Version{6, 5, 0}, v)

	_, err = parseToolVersion("mkfs.xfs", mkfsXfsVersionRegex, "garbage")
	assert.Error(t, err)
}

// writeMbr writes a hand-built MBR so the go-diskfs reader can be tested without util-linux.
func writeMbr(t *testing.T, diskPath string, signature uint32, bootable bool, partType byte, start, size uint32) {
	require.NoError(t, CreateSparseDisk(diskPath, 8*MiB, 0o644))

	sector := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(sector[440:444], signature)

	entry := sector[446:462]
	if bootable {
		entry[0] = 0x80
	}
	entry[4] = partType
	binary.LittleEndian.PutUint32(entry[8:12], start)
	binary.LittleEndian.PutUint32(entry[12:16], size)

	sector[510] = 0x55
	sector[511] = 0xAA

	f, err := os.OpenFile(diskPath, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(sector, 0)
	require.NoError(t, err)
}

func TestCheckSfdiskVersion(t *testing.T) {
	old, err := version.ParseFromOutput("sfdisk from util-linux 2.26.2")
	require.NoError(t, err)
	assert.ErrorContains(t, checkSfdiskVersion(old), "sfdisk version (2.26.2) is too old")

	current, err := version.ParseFromOutput("sfdisk from util-linux 2.39.3")
	require.NoError(t, err)
	assert.NoError(t, checkSfdiskVersion(current))

	assert.NoError(t, checkSfdiskVersion(version.Version{2, 27}))
}

func TestCheckInstalledSfdiskVersion(t *testing.T) {
	exists, err := file.CommandExists("sfdisk")
	require.NoError(t, err)
	if !exists {
		t.Skip("The 'sfdisk' command is not available")
	}

	assert.NoError(t, CheckSfdiskVersion())
}

func TestVerifyMbr(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.img")
	writeMbr(t, diskPath, 0x14fc63d2, true, 0x83, 2048, 14336)

	info, err := ReadMbr(diskPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x14fc63d2), info.DiskSignature)
	require.Len(t, info.Partitions, 1)
	assert.Equal(t, uint32(2048), info.Partitions[0].Start)

	err = VerifyMbr(diskPath, 0x14fc63d2, 2048*512, 14336*512)
	assert.NoError(t, err)

	err = VerifyMbr(diskPath, 0xdeadbeef, 2048*512, 14336*512)
	assert.ErrorContains(t, err, "disk signature mismatch")

	err = VerifyMbr(diskPath, 0x14fc63d2, 4096*512, 14336*512)
	assert.ErrorContains(t, err, "range mismatch")
}

func TestVerifyMbrNotBootable(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.img")
	writeMbr(t, diskPath, 1, false, 0x83, 2048, 14336)

	err := VerifyMbr(diskPath, 1, 2048*512, 14336*512)
	assert.ErrorContains(t, err, "not marked bootable")
}

func TestCreateAndReadMbrPartitionTable(t *testing.T) {
	for _, tool := range []string{"sfdisk", "flock"} {
		exists, err := file.CommandExists(tool)
		require.NoError(t, err)
		if !exists {
			t.Skipf("The '%s' command is not available", tool)
		}
	}

	diskPath := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, CreateSparseDisk(diskPath, 100*MiB, 0o644))

	err := CreateMbrPartitionTable(context.Background(), diskPath, "0x14fc63d2")
	require.NoError(t, err)

	table, err := ReadDiskPartitionTable(context.Background(), diskPath)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, MbrLabel, table.Label)
	assert.Equal(t, "0x14fc63d2", table.Id)
	require.Len(t, table.Partitions, 1)
	assert.True(t, table.Partitions[0].Bootable)

	offset, size := table.Partitions[0].ByteRange(table.SectorSize)
	assert.Equal(t, uint64(MiB), offset)
	assert.Equal(t, uint64(99*MiB), size)

	err = VerifyMbr(diskPath, 0x14fc63d2, offset, size)
	assert.NoError(t, err)
}

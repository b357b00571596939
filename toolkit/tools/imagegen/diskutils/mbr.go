// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskutils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

const (
	// The boot code area of the MBR. GRUB's boot.img contributes exactly this many bytes.
	MbrBootCodeSize = 440

	mbrDiskSignatureOffset = 440
	mbrBootSignatureOffset = 510
)

var (
	ErrNoMbr            = errors.New("disk does not have an MBR partition table")
	ErrMbrBootSignature = errors.New("MBR is missing the 0x55AA boot signature")
)

// MbrInfo is the MBR as seen by an independent parser.
type MbrInfo struct {
	DiskSignature uint32
	Partitions    []MbrPartition
}

type MbrPartition struct {
	Bootable bool
	Type     byte
	// In sectors.
	Start uint32
	Size  uint32
}

// ReadMbr parses the MBR of a disk file without relying on util-linux.
func ReadMbr(diskPath string) (*MbrInfo, error) {
	disk, err := diskfs.Open(diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk (%s):\n%w", diskPath, err)
	}
	defer disk.Close()

	table, err := disk.GetPartitionTable()
	if err != nil {
		return nil, fmt.Errorf("%w (%s):\n%w", ErrNoMbr, diskPath, err)
	}

	mbrTable, ok := table.(*mbr.Table)
	if !ok {
		return nil, fmt.Errorf("%w (%s): found (%s) table", ErrNoMbr, diskPath, table.Type())
	}

	signature, err := readMbrSignatures(diskPath)
	if err != nil {
		return nil, err
	}

	info := &MbrInfo{
		DiskSignature: signature,
	}

	for _, partition := range mbrTable.Partitions {
		if partition == nil || partition.Type == mbr.Empty {
			continue
		}

		info.Partitions = append(info.Partitions, MbrPartition{
			Bootable: partition.Bootable,
			Type:     byte(partition.Type),
			Start:    partition.Start,
			Size:     partition.Size,
		})
	}

	return info, nil
}

func readMbrSignatures(diskPath string) (uint32, error) {
	file, err := os.Open(diskPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open disk (%s):\n%w", diskPath, err)
	}
	defer file.Close()

	sector := make([]byte, SectorSize)
	_, err = io.ReadFull(file, sector)
	if err != nil {
		return 0, fmt.Errorf("failed to read MBR of (%s):\n%w", diskPath, err)
	}

	if sector[mbrBootSignatureOffset] != 0x55 || sector[mbrBootSignatureOffset+1] != 0xAA {
		return 0, fmt.Errorf("%w (%s)", ErrMbrBootSignature, diskPath)
	}

	return binary.LittleEndian.Uint32(sector[mbrDiskSignatureOffset : mbrDiskSignatureOffset+4]), nil
}

// VerifyMbr checks that the disk has a single bootable Linux partition matching the expected byte range and disk
// signature.
func VerifyMbr(diskPath string, diskSignature uint32, offset uint64, size uint64) error {
	info, err := ReadMbr(diskPath)
	if err != nil {
		return err
	}

	if info.DiskSignature != diskSignature {
		return fmt.Errorf("MBR disk signature mismatch (expected=0x%08x, actual=0x%08x)", diskSignature,
			info.DiskSignature)
	}

	if len(info.Partitions) != 1 {
		return fmt.Errorf("expected exactly one MBR partition, found (%d)", len(info.Partitions))
	}

	partition := info.Partitions[0]
	if !partition.Bootable {
		return fmt.Errorf("MBR partition is not marked bootable")
	}

	if partition.Type != byte(mbr.Linux) {
		return fmt.Errorf("MBR partition type is (0x%02x), expected (0x%02x)", partition.Type, byte(mbr.Linux))
	}

	actualOffset := uint64(partition.Start) * SectorSize
	actualSize := uint64(partition.Size) * SectorSize
	if actualOffset != offset || actualSize != size {
		return fmt.Errorf("MBR partition range mismatch (expected offset=%d size=%d, actual offset=%d size=%d)",
			offset, size, actualOffset, actualSize)
	}

	return nil
}

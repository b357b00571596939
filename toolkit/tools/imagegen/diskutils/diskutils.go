// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Utility to create and inspect raw disk files and their partition tables

package diskutils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/version"
	"github.com/sirupsen/logrus"
)

type PartitionTablePartition struct {
	// Populated from "sfdisk --json":
	Path     string `json:"node"`     // Example: /tmp/disk.img1
	Start    uint64 `json:"start"`    // Example: 2048
	Size     uint64 `json:"size"`     // Example: 16384
	Type     string `json:"type"`     // Example: 83
	Bootable bool   `json:"bootable"` // Example: true
}

type PartitionTable struct {
	Label      string                    `json:"label"`      // Example: dos
	Id         string                    `json:"id"`         // Example: 0x14fc63d2
	Device     string                    `json:"device"`     // Example: /tmp/disk.img
	Unit       string                    `json:"unit"`       // Example: sectors
	SectorSize int                       `json:"sectorsize"` // Example: 512
	Partitions []PartitionTablePartition `json:"partitions"`
}

type partitionTableOutput struct {
	PartitionTable *PartitionTable `json:"partitiontable"`
}

const (
	SectorSize = 512

	MbrLabel              = "dos"
	LinuxMbrPartitionType = "83"
)

const (
	KiB = 1024
)

var (
	// 'sfdisk --json' was added in util-linux v2.27.
	minSfdiskVersion = version.Version{2, 27}
)

// CreateSparseDisk creates an empty sparse disk file of exactly size bytes.
func CreateSparseDisk(diskPath string, size uint64, perm os.FileMode) (err error) {
	file, err := os.OpenFile(diskPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create empty disk file:\n%w", err)
	}
	defer file.Close()

	err = file.Truncate(int64(size))
	if err != nil {
		return fmt.Errorf("failed to set empty disk file's size:\n%w", err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("failed to close empty disk file:\n%w", err)
	}

	return nil
}

// MbrPartitionTableScript is the sfdisk script for an MBR disk with one bootable Linux partition that fills the
// disk at sfdisk's default alignment.
func MbrPartitionTableScript(ptUuid string) string {
	return fmt.Sprintf("label: mbr\nlabel-id: %s\nbootable, type=%s\n", ptUuid, LinuxMbrPartitionType)
}

// CreateMbrPartitionTable writes a new MBR partition table to a disk file or device. Any existing table is wiped.
func CreateMbrPartitionTable(ctx context.Context, diskPath string, ptUuid string) error {
	logger.Log.Debugf("Creating MBR partition table on (%s) with label-id (%s)", diskPath, ptUuid)

	err := shell.NewExecBuilder("flock", "--timeout", "5", diskPath, "sfdisk", "--lock=no", diskPath).
		Context(ctx).
		Stdin(MbrPartitionTableScript(ptUuid)).
		LogLevel(logrus.DebugLevel, logrus.WarnLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create partition table (%s) using sfdisk:\n%w", diskPath, err)
	}

	return nil
}

// ReadDiskPartitionTable reads the partition table of a disk file or device. Returns nil when the disk has no
// partition table.
func ReadDiskPartitionTable(ctx context.Context, diskPath string) (*PartitionTable, error) {
	stdout, stderr, err := shell.NewExecBuilder("flock", "--timeout", "5", "--shared", diskPath,
		"sfdisk", "--lock=no", "--json", diskPath).
		Context(ctx).
		LogLevel(logrus.TraceLevel, logrus.DebugLevel).
		ExecuteCaptureOuput()
	if err != nil {
		if strings.Contains(stderr, "does not contain a recognized partition table") {
			// Empty partition table.
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read partition table (%s):\n%w", diskPath, err)
	}

	partitionTable, err := parsePartitionTable(stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse disk (%s) partition table:\n%w", diskPath, err)
	}

	return partitionTable, nil
}

func parsePartitionTable(stdout string) (*PartitionTable, error) {
	var output partitionTableOutput
	if strings.TrimSpace(stdout) == "" {
		return nil, nil
	}

	err := json.Unmarshal([]byte(stdout), &output)
	if err != nil {
		return nil, fmt.Errorf("invalid sfdisk JSON:\n%w", err)
	}

	if output.PartitionTable == nil {
		// Disk is empty.
		return nil, nil
	}

	partitionTable := output.PartitionTable

	if partitionTable.Unit != "sectors" {
		return nil, fmt.Errorf("sfdisk returned unexpected unit size '%s': expecting 'sectors'", partitionTable.Unit)
	}

	if partitionTable.SectorSize == 0 {
		// Older util-linux versions omit the field.
		partitionTable.SectorSize = SectorSize
	}

	return partitionTable, nil
}

// ByteRange returns the offset and length of the partition in bytes.
func (p PartitionTablePartition) ByteRange(sectorSize int) (offset uint64, size uint64) {
	return p.Start * uint64(sectorSize), p.Size * uint64(sectorSize)
}

// ProbeFilesystemUuid reads a filesystem's UUID directly from the device, bypassing the blkid cache.
func ProbeFilesystemUuid(ctx context.Context, devicePath string) (string, error) {
	return probeFilesystemTag(ctx, devicePath, "UUID")
}

// ProbeFilesystemType reads a filesystem's type directly from the device, bypassing the blkid cache.
func ProbeFilesystemType(ctx context.Context, devicePath string) (string, error) {
	return probeFilesystemTag(ctx, devicePath, "TYPE")
}

func probeFilesystemTag(ctx context.Context, devicePath string, tag string) (string, error) {
	stdout, _, err := shell.NewExecBuilder("blkid", "--probe", "-s", tag, "-o", "value", devicePath).
		Context(ctx).
		LogLevel(logrus.TraceLevel, logrus.DebugLevel).
		ExecuteCaptureOuput()
	if err != nil {
		return "", fmt.Errorf("failed to probe filesystem %s of (%s):\n%w", tag, devicePath, err)
	}

	return strings.TrimSpace(stdout), nil
}

func GetSfdiskVersion() (version.Version, error) {
	stdout, _, err := shell.Execute("sfdisk", "--version")
	if err != nil {
		return nil, fmt.Errorf("failed to get sfdisk version:\n%w", err)
	}

	return version.ParseFromOutput(stdout)
}

// CheckSfdiskVersion fails when the installed sfdisk cannot emit JSON.
func CheckSfdiskVersion() error {
	sfdiskVersion, err := GetSfdiskVersion()
	if err != nil {
		return err
	}

	return checkSfdiskVersion(sfdiskVersion)
}

func checkSfdiskVersion(sfdiskVersion version.Version) error {
	if sfdiskVersion.Lt(minSfdiskVersion) {
		return fmt.Errorf("sfdisk version (%s) is too old: at least (%s) is required", sfdiskVersion,
			minSfdiskVersion)
	}

	return nil
}

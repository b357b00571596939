// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"fmt"
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// PartitionLayout is the byte range of the root partition as placed by the partitioning tool.
type PartitionLayout struct {
	OffsetBytes uint64
	SizeBytes   uint64
}

func planPartition(ctx context.Context, rawImagePath string, ptUuid string) (layout PartitionLayout, err error) {
	logger.Log.Infof("Partitioning raw image")

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "plan_partition")
	defer finishSpanWithError(span, &err)

	// The layout is read back with 'sfdisk --json'.
	err = diskutils.CheckSfdiskVersion()
	if err != nil {
		return PartitionLayout{}, fmt.Errorf("%w:\n%w", ErrPartition, err)
	}

	err = diskutils.CreateMbrPartitionTable(ctx, rawImagePath, ptUuid)
	if err != nil {
		return PartitionLayout{}, fmt.Errorf("%w (file='%s'):\n%w", ErrPartition, rawImagePath, err)
	}

	partitionTable, err := diskutils.ReadDiskPartitionTable(ctx, rawImagePath)
	if err != nil {
		return PartitionLayout{}, fmt.Errorf("%w (file='%s'):\n%w", ErrPartition, rawImagePath, err)
	}

	layout, err = partitionLayoutFromTable(partitionTable, ptUuid)
	if err != nil {
		return PartitionLayout{}, fmt.Errorf("%w (file='%s'):\n%w", ErrPartition, rawImagePath, err)
	}

	span.SetAttributes(
		attribute.Int64("partition_offset", int64(layout.OffsetBytes)),
		attribute.Int64("partition_size", int64(layout.SizeBytes)),
	)

	logger.Log.Debugf("Root partition: offset=%d size=%d", layout.OffsetBytes, layout.SizeBytes)

	return layout, nil
}

func partitionLayoutFromTable(partitionTable *diskutils.PartitionTable, ptUuid string) (PartitionLayout, error) {
	if partitionTable == nil {
		return PartitionLayout{}, fmt.Errorf("disk has no partition table")
	}

	if partitionTable.Label != diskutils.MbrLabel {
		return PartitionLayout{}, fmt.Errorf("unexpected partition table label (%s), expected (%s)",
			partitionTable.Label, diskutils.MbrLabel)
	}

	if !strings.EqualFold(partitionTable.Id, ptUuid) {
		return PartitionLayout{}, fmt.Errorf("partition table id (%s) does not match ptuuid (%s)",
			partitionTable.Id, ptUuid)
	}

	if len(partitionTable.Partitions) != 1 {
		return PartitionLayout{}, fmt.Errorf("expected exactly one partition, found (%d)",
			len(partitionTable.Partitions))
	}

	partition := partitionTable.Partitions[0]
	if !partition.Bootable {
		return PartitionLayout{}, fmt.Errorf("partition (%s) is not bootable", partition.Path)
	}

	if partition.Type != diskutils.LinuxMbrPartitionType {
		return PartitionLayout{}, fmt.Errorf("partition (%s) has type (%s), expected (%s)", partition.Path,
			partition.Type, diskutils.LinuxMbrPartitionType)
	}

	offset, size := partition.ByteRange(partitionTable.SectorSize)
	if offset%diskutils.SectorSize != 0 || size%diskutils.SectorSize != 0 {
		return PartitionLayout{}, fmt.Errorf("partition range (offset=%d, size=%d) is not sector aligned",
			offset, size)
	}

	if offset < diskutils.SectorSize || size == 0 {
		return PartitionLayout{}, fmt.Errorf("partition range (offset=%d, size=%d) overlaps the MBR", offset, size)
	}

	return PartitionLayout{
		OffsetBytes: offset,
		SizeBytes:   size,
	}, nil
}

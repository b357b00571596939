// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/loopback"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/safemount"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type populateParams struct {
	broker       loopback.Broker
	rawImagePath string
	layout       PartitionLayout
	fsKind       diskassemblerapi.FsKind
	fsUuid       uuid.UUID
	treeDir      string
	treeBindDir  string
	mountDir     string
}

// populateFilesystem formats the root partition and copies the source tree into it. The lease is released and
// every mount is unmounted before returning, on every path.
func populateFilesystem(ctx context.Context, params populateParams) (err error) {
	logger.Log.Infof("Populating (%s) root filesystem", params.fsKind)

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "populate_filesystem")
	span.SetAttributes(
		attribute.String("fs_type", string(params.fsKind)),
	)
	defer finishSpanWithError(span, &err)

	lease, err := params.broker.Acquire(ctx, params.rawImagePath, &loopback.Range{
		Offset: params.layout.OffsetBytes,
		Size:   params.layout.SizeBytes,
	})
	if err != nil {
		return fmt.Errorf("%w (file='%s'):\n%w", ErrDeviceLease, params.rawImagePath, err)
	}
	defer lease.Close()

	devicePath := lease.DevicePath()

	err = diskutils.FormatDevice(ctx, params.fsKind.MkfsCommand(),
		params.fsKind.MkfsArgs(params.fsUuid.String(), devicePath))
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrFormat, devicePath, err)
	}

	err = copyTreeToDevice(ctx, params, devicePath)
	if err != nil {
		return err
	}

	err = verifyFilesystemType(ctx, devicePath, params.fsKind)
	if err != nil {
		return err
	}

	err = verifyFilesystemUuid(ctx, devicePath, params.fsUuid)
	if err != nil {
		return err
	}

	err = lease.CleanClose()
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrDeviceLease, devicePath, err)
	}

	return nil
}

func copyTreeToDevice(ctx context.Context, params populateParams, devicePath string) error {
	treeMount, err := safemount.NewReadOnlyBindMount(params.treeDir, params.treeBindDir, true /*makeAndDeleteDir*/)
	if err != nil {
		return fmt.Errorf("%w (tree='%s'):\n%w", ErrMount, params.treeDir, err)
	}
	defer treeMount.Close()

	deviceMount, err := safemount.NewMount(devicePath, params.mountDir, string(params.fsKind), 0, "",
		true /*makeAndDeleteDir*/)
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrMount, devicePath, err)
	}
	defer deviceMount.Close()

	logger.Log.Infof("Copying (%s) into root filesystem", params.treeDir)

	err = file.NewDirCopyBuilder(treeMount.Target(), deviceMount.Target()).Run(ctx)
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrMount, err)
	}

	err = deviceMount.CleanClose()
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrMount, devicePath, err)
	}

	err = treeMount.CleanClose()
	if err != nil {
		return fmt.Errorf("%w (tree='%s'):\n%w", ErrMount, params.treeDir, err)
	}

	return nil
}

func verifyFilesystemType(ctx context.Context, devicePath string, expected diskassemblerapi.FsKind) error {
	actual, err := diskutils.ProbeFilesystemType(ctx, devicePath)
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrFormat, devicePath, err)
	}

	if actual != string(expected) {
		return fmt.Errorf("%w (filesystem type mismatch, expected='%s', actual='%s')", ErrFormat, expected, actual)
	}

	return nil
}

func verifyFilesystemUuid(ctx context.Context, devicePath string, expected uuid.UUID) error {
	actualValue, err := diskutils.ProbeFilesystemUuid(ctx, devicePath)
	if err != nil {
		return fmt.Errorf("%w (device='%s'):\n%w", ErrFormat, devicePath, err)
	}

	actual, err := uuid.Parse(actualValue)
	if err != nil {
		return fmt.Errorf("%w (device='%s', uuid='%s'):\n%w", ErrFormat, devicePath, actualValue, err)
	}

	if actual != expected {
		return fmt.Errorf("%w (filesystem UUID mismatch, expected='%s', actual='%s')", ErrFormat, expected, actual)
	}

	return nil
}

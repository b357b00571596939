// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	grubBootImageName = "boot.img"
	grubPrefix        = "(,msdos1)/boot/grub2"
	grubFormat        = "i386-pc"

	// Stage2 starts right after the MBR.
	coreImageOffset = diskutils.SectorSize
)

// LoaderGenerator produces the two boot stages written into the disk image.
type LoaderGenerator interface {
	// BootSectorTemplate returns the 512-byte stage1 template. Only its boot code area is written to the disk.
	BootSectorTemplate(ctx context.Context) ([]byte, error)
	// GenerateCoreImage writes the stage2 loader, able to read the given filesystem module, to outputPath.
	GenerateCoreImage(ctx context.Context, fsModule string, outputPath string) error
}

// GrubLoaderGenerator builds boot stages from GRUB's i386-pc modules.
type GrubLoaderGenerator struct {
	ModuleDir string
}

func NewGrubLoaderGenerator(moduleDir string) *GrubLoaderGenerator {
	return &GrubLoaderGenerator{
		ModuleDir: moduleDir,
	}
}

func (g *GrubLoaderGenerator) BootSectorTemplate(ctx context.Context) ([]byte, error) {
	bootImagePath := filepath.Join(g.ModuleDir, grubBootImageName)

	bootImage, err := os.ReadFile(bootImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read GRUB boot image (%s):\n%w", bootImagePath, err)
	}

	if len(bootImage) != diskutils.SectorSize {
		return nil, fmt.Errorf("GRUB boot image (%s) is (%d) bytes, expected (%d)", bootImagePath, len(bootImage),
			diskutils.SectorSize)
	}

	return bootImage, nil
}

func (g *GrubLoaderGenerator) GenerateCoreImage(ctx context.Context, fsModule string, outputPath string) error {
	err := shell.NewExecBuilder(grubMkimageCommand(), grubMkimageArgs(g.ModuleDir, fsModule, outputPath)...).
		Context(ctx).
		LogLevel(logrus.DebugLevel, logrus.DebugLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to generate GRUB core image (%s):\n%w", outputPath, err)
	}

	return nil
}

// grubMkimageCommand prefers the Fedora/Azure Linux binary name and falls back to the Debian one.
func grubMkimageCommand() string {
	exists, _ := file.CommandExists("grub2-mkimage")
	if !exists {
		if exists, _ := file.CommandExists("grub-mkimage"); exists {
			return "grub-mkimage"
		}
	}
	return "grub2-mkimage"
}

func grubMkimageArgs(moduleDir string, fsModule string, outputPath string) []string {
	return []string{
		"--verbose",
		"--directory", moduleDir,
		"--prefix", grubPrefix,
		"--format", grubFormat,
		"--compression", "auto",
		"--output", outputPath,
		"part_msdos", fsModule, "biosdisk",
	}
}

func installBootRecord(ctx context.Context, generator LoaderGenerator, fsKind diskassemblerapi.FsKind,
	rawImagePath string, coreImagePath string, layout PartitionLayout, diskSignature uint32,
) (err error) {
	logger.Log.Infof("Installing boot record")

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "install_boot_record")
	span.SetAttributes(
		attribute.String("fs_module", fsKind.GrubModule()),
	)
	defer finishSpanWithError(span, &err)

	err = generator.GenerateCoreImage(ctx, fsKind.GrubModule(), coreImagePath)
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrBootRecord, err)
	}

	coreImage, err := os.ReadFile(coreImagePath)
	if err != nil {
		return fmt.Errorf("%w (file='%s'):\n%w", ErrBootRecord, coreImagePath, err)
	}

	span.SetAttributes(attribute.Int("core_image_size", len(coreImage)))

	bootSector, err := generator.BootSectorTemplate(ctx)
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrBootRecord, err)
	}

	err = writeBootRecord(rawImagePath, bootSector, coreImage, layout.OffsetBytes)
	if err != nil {
		return err
	}

	err = diskutils.VerifyMbr(rawImagePath, diskSignature, layout.OffsetBytes, layout.SizeBytes)
	if err != nil {
		return fmt.Errorf("%w (partition table damaged by boot record, file='%s'):\n%w", ErrPartition,
			rawImagePath, err)
	}

	return nil
}

// writeBootRecord writes the boot code area of bootSector at offset 0 and coreImage at offset 512. The partition
// table area [440, 512) is never written. Nothing is written when coreImage does not fit before the partition.
func writeBootRecord(rawImagePath string, bootSector []byte, coreImage []byte, partitionOffset uint64) error {
	if partitionOffset < coreImageOffset || uint64(len(coreImage)) >= partitionOffset-coreImageOffset {
		return fmt.Errorf("%w (core image size=%d, space available=%d)", ErrBootloaderTooLarge, len(coreImage),
			availableCoreImageSpace(partitionOffset))
	}

	if len(bootSector) < diskutils.MbrBootCodeSize {
		return fmt.Errorf("%w: boot sector template is (%d) bytes, need at least (%d)", ErrBootRecord,
			len(bootSector), diskutils.MbrBootCodeSize)
	}

	disk, err := os.OpenFile(rawImagePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w (file='%s'):\n%w", ErrBootRecord, rawImagePath, err)
	}
	defer disk.Close()

	_, err = disk.WriteAt(bootSector[:diskutils.MbrBootCodeSize], 0)
	if err != nil {
		return fmt.Errorf("%w (failed to write stage1, file='%s'):\n%w", ErrBootRecord, rawImagePath, err)
	}

	_, err = disk.WriteAt(coreImage, coreImageOffset)
	if err != nil {
		return fmt.Errorf("%w (failed to write stage2, file='%s'):\n%w", ErrBootRecord, rawImagePath, err)
	}

	err = disk.Close()
	if err != nil {
		return fmt.Errorf("%w (file='%s'):\n%w", ErrBootRecord, rawImagePath, err)
	}

	return nil
}

func availableCoreImageSpace(partitionOffset uint64) uint64 {
	if partitionOffset < coreImageOffset {
		return 0
	}
	return partitionOffset - coreImageOffset
}

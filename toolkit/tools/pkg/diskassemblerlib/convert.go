// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/vhdutils"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	outputImagePerm = 0o644

	// Same dictionary size as 'xz -0'. The encoder has no presets, so the output bytes differ from xz(1) but the
	// stream decodes with any xz implementation.
	xzDictCap = 256 * diskutils.KiB
)

// convertImage writes the raw image to outputPath in the requested format. Partial outputs are left in place on
// failure.
func convertImage(ctx context.Context, rawImagePath string, outputPath string, format diskassemblerapi.FormatKind,
	diskSize uint64,
) (err error) {
	logger.Log.Infof("Writing (%s) image (%s)", format, outputPath)

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "convert_image")
	span.SetAttributes(
		attribute.String("output_image_format", string(format)),
	)
	defer finishSpanWithError(span, &err)

	switch format.ConversionMethod() {
	case diskassemblerapi.ConversionMethodCopy:
		err = file.NewFileCopyBuilder(rawImagePath, outputPath).
			SetSparse().
			SetFileMode(outputImagePerm).
			Run()

	case diskassemblerapi.ConversionMethodXz:
		err = compressXz(rawImagePath, outputPath)

	case diskassemblerapi.ConversionMethodQemuImg:
		err = qemuImgConvert(ctx, rawImagePath, outputPath, format)

	default:
		err = fmt.Errorf("no conversion method for format (%s)", format)
	}
	if err != nil {
		return fmt.Errorf("%w (output='%s', format='%s'):\n%w", ErrConversionFailed, outputPath, format, err)
	}

	err = verifyOutputImage(outputPath, format, diskSize)
	if err != nil {
		return fmt.Errorf("%w (output='%s', format='%s'):\n%w", ErrConversionFailed, outputPath, format, err)
	}

	return nil
}

func buildQemuImgConvertArgs(rawImagePath string, outputPath string, format diskassemblerapi.FormatKind) []string {
	args := []string{"convert", "-O", string(format)}
	args = append(args, format.QemuImgArgs()...)
	args = append(args, rawImagePath, outputPath)
	return args
}

func qemuImgConvert(ctx context.Context, rawImagePath string, outputPath string,
	format diskassemblerapi.FormatKind,
) error {
	err := file.CreateDestinationDir(outputPath, os.ModePerm)
	if err != nil {
		return err
	}

	err = shell.NewExecBuilder("qemu-img", buildQemuImgConvertArgs(rawImagePath, outputPath, format)...).
		Context(ctx).
		LogLevel(logrus.DebugLevel, logrus.DebugLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to convert image file to format (%s):\n%w", format, err)
	}

	return nil
}

func compressXz(rawImagePath string, outputPath string) error {
	source, err := os.Open(rawImagePath)
	if err != nil {
		return fmt.Errorf("failed to open raw image:\n%w", err)
	}
	defer source.Close()

	err = file.CreateDestinationDir(outputPath, os.ModePerm)
	if err != nil {
		return err
	}

	output, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, outputImagePerm)
	if err != nil {
		return fmt.Errorf("failed to create xz output file:\n%w", err)
	}
	defer output.Close()

	bufferedOutput := bufio.NewWriter(output)

	xzWriter, err := xz.WriterConfig{DictCap: xzDictCap}.NewWriter(bufferedOutput)
	if err != nil {
		return fmt.Errorf("failed to create xz writer:\n%w", err)
	}

	_, err = io.Copy(xzWriter, bufio.NewReader(source))
	if err != nil {
		return fmt.Errorf("failed to compress raw image:\n%w", err)
	}

	err = xzWriter.Close()
	if err != nil {
		return fmt.Errorf("failed to finish xz stream:\n%w", err)
	}

	err = bufferedOutput.Flush()
	if err != nil {
		return fmt.Errorf("failed to write xz output file:\n%w", err)
	}

	err = output.Close()
	if err != nil {
		return fmt.Errorf("failed to close xz output file:\n%w", err)
	}

	return nil
}

func verifyOutputImage(outputPath string, format diskassemblerapi.FormatKind, diskSize uint64) error {
	switch format {
	case diskassemblerapi.FormatKindRaw:
		size, err := file.Size(outputPath)
		if err != nil {
			return fmt.Errorf("failed to stat output image:\n%w", err)
		}
		if uint64(size) != diskSize {
			return fmt.Errorf("output image is (%d) bytes, expected (%d)", size, diskSize)
		}

	case diskassemblerapi.FormatKindVpc:
		err := vhdutils.VerifyFixedVhd(outputPath, diskSize)
		if errors.Is(err, vhdutils.ErrVhdUsesDiskGeometry) {
			logger.Log.Warnf("VHD (%s) size is derived from disk geometry:\n%v", outputPath, err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid VHD footer:\n%w", err)
		}
	}

	return nil
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/checksum"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// AssembleResult describes the image written by Assemble.
type AssembleResult struct {
	Path     string                      `json:"path"`
	Format   diskassemblerapi.FormatKind `json:"format"`
	Size     uint64                      `json:"size"`
	Checksum string                      `json:"checksum"`
}

// AssembleWithRequestFile loads a YAML or JSON request file and assembles it. Relative paths in the request are
// relative to the request file's directory.
func AssembleWithRequestFile(ctx context.Context, requestFile string, options AssembleOptions,
) (*AssembleResult, error) {
	var request diskassemblerapi.Request

	err := diskassemblerapi.UnmarshalYamlFile(requestFile, &request)
	if err != nil {
		return nil, fmt.Errorf("%w (file='%s'):\n%w", ErrInvalidRequestFile, requestFile, err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(requestFile))
	if err != nil {
		return nil, fmt.Errorf("%w (file='%s'):\n%w", ErrInvalidRequestFile, requestFile, err)
	}

	request.ResolvePaths(baseDir)

	return Assemble(ctx, &request, options)
}

// Assemble builds a bootable single-partition disk image from request.Tree and writes it to request.OutputDir.
// Nothing is written anywhere until the request and options have been validated.
func Assemble(ctx context.Context, request *diskassemblerapi.Request, options AssembleOptions,
) (result *AssembleResult, err error) {
	spec := &request.Options

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "assemble")
	span.SetAttributes(
		attribute.String("output_image_format", string(spec.Format)),
		attribute.String("fs_type", string(spec.RootFsKind())),
		attribute.Int64("size", int64(spec.Size)),
	)
	defer finishSpanWithError(span, &err)

	err = validateAssembleInputs(ctx, request, &options)
	if err != nil {
		return nil, err
	}

	workspace, err := NewWorkspace(options.BuildDir, options.ScratchPolicy)
	if err != nil {
		return nil, err
	}
	defer func() {
		workspace.Close(err == nil)
	}()

	result, err = assembleInWorkspace(ctx, request, &options, workspace)
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("Success! Image written to (%s)", result.Path)

	return result, nil
}

func validateAssembleInputs(ctx context.Context, request *diskassemblerapi.Request, options *AssembleOptions,
) (err error) {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "validate_request")
	defer finishSpanWithError(span, &err)

	err = request.IsValid()
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrInvalidOption, err)
	}

	err = options.IsValid()
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrInvalidOption, err)
	}

	return nil
}

func assembleInWorkspace(ctx context.Context, request *diskassemblerapi.Request, options *AssembleOptions,
	workspace *Workspace,
) (*AssembleResult, error) {
	spec := &request.Options
	rawImagePath := workspace.RawImagePath()

	err := createRawImage(ctx, rawImagePath, spec.Size)
	if err != nil {
		return nil, err
	}

	layout, err := planPartition(ctx, rawImagePath, spec.PtUuid)
	if err != nil {
		return nil, err
	}

	err = installBootRecord(ctx, options.loaderGenerator(), spec.RootFsKind(), rawImagePath,
		workspace.CoreImagePath(), layout, spec.DiskSignature())
	if err != nil {
		return nil, err
	}

	err = populateFilesystem(ctx, populateParams{
		broker:       options.broker(),
		rawImagePath: rawImagePath,
		layout:       layout,
		fsKind:       spec.RootFsKind(),
		fsUuid:       spec.RootFsUuidValue(),
		treeDir:      request.Tree,
		treeBindDir:  workspace.TreeDir(),
		mountDir:     workspace.MountDir(),
	})
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(request.OutputDir, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("%w (output='%s'):\n%w", ErrConversionFailed, request.OutputDir, err)
	}

	outputPath := request.OutputPath()

	err = convertImage(ctx, rawImagePath, outputPath, spec.Format, spec.Size)
	if err != nil {
		return nil, err
	}

	outputChecksum, err := computeOutputChecksum(ctx, outputPath, options.checksumAlgorithm())
	if err != nil {
		return nil, err
	}

	return &AssembleResult{
		Path:     outputPath,
		Format:   spec.Format,
		Size:     spec.Size,
		Checksum: outputChecksum.String(),
	}, nil
}

func computeOutputChecksum(ctx context.Context, outputPath string, algorithm checksum.Algorithm,
) (result checksum.Checksum, err error) {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "compute_checksum")
	span.SetAttributes(
		attribute.String("algorithm", string(algorithm)),
	)
	defer finishSpanWithError(span, &err)

	result, err = checksum.ComputeFile(outputPath, algorithm)
	if err != nil {
		return checksum.Checksum{}, fmt.Errorf("%w (file='%s'):\n%w", ErrChecksum, outputPath, err)
	}

	logger.Log.Debugf("Output checksum: %s", result)

	return result, nil
}

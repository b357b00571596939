// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"context"
	"fmt"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/imagegen/diskutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	rawImagePerm = 0o644
)

func createRawImage(ctx context.Context, rawImagePath string, size uint64) (err error) {
	logger.Log.Infof("Creating raw image (%s) of (%d) bytes", rawImagePath, size)

	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "create_raw_image")
	span.SetAttributes(
		attribute.Int64("size", int64(size)),
	)
	defer finishSpanWithError(span, &err)

	err = diskutils.CreateSparseDisk(rawImagePath, size, rawImagePerm)
	if err != nil {
		return fmt.Errorf("%w (file='%s'):\n%w", ErrCreateRawImage, rawImagePath, err)
	}

	return nil
}

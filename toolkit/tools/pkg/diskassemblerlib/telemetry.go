// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	OtelTracerName = "diskassemblerlib"
)

// ToolVersion is the version of the disk assembler.
// The value of this string is inserted during compilation via a linker flag.
var ToolVersion = ""

func finishSpanWithError(span trace.Span, err *error) {
	if *err != nil {
		errorNames := []string{"Unset"}
		if namedErrors := GetAllAssemblerErrors(*err); len(namedErrors) > 0 {
			errorNames = make([]string, len(namedErrors))
			for i, namedError := range namedErrors {
				errorNames[i] = namedError.Name()
			}
		}

		span.SetAttributes(
			attribute.StringSlice("errors.name", errorNames),
		)
		span.SetStatus(codes.Error, errorNames[len(errorNames)-1])
	}
	span.End()
}

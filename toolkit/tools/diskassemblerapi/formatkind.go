// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

type FormatKind string

const (
	FormatKindRaw   FormatKind = "raw"
	FormatKindRawXz FormatKind = "raw.xz"
	FormatKindQcow2 FormatKind = "qcow2"
	FormatKindVdi   FormatKind = "vdi"
	FormatKindVmdk  FormatKind = "vmdk"
	FormatKindVpc   FormatKind = "vpc"
)

// ConversionMethod is how the raw backing image becomes the output file.
type ConversionMethod int

const (
	// Sparse-aware byte copy.
	ConversionMethodCopy ConversionMethod = iota
	// xz stream compression. The source is kept.
	ConversionMethodXz
	// 'qemu-img convert -O <format> <args...>'.
	ConversionMethodQemuImg
)

type formatKindInfo struct {
	method   ConversionMethod
	qemuArgs []string
}

var formatKinds = map[FormatKind]formatKindInfo{
	FormatKindRaw:   {method: ConversionMethodCopy},
	FormatKindRawXz: {method: ConversionMethodXz},
	FormatKindQcow2: {method: ConversionMethodQemuImg, qemuArgs: []string{"-c"}},
	FormatKindVdi:   {method: ConversionMethodQemuImg},
	FormatKindVmdk:  {method: ConversionMethodQemuImg, qemuArgs: []string{"-c"}},
	FormatKindVpc:   {method: ConversionMethodQemuImg, qemuArgs: []string{"-o", "subformat=fixed,force_size"}},
}

// supportedFormatKinds is in the order the formats are documented.
var supportedFormatKinds = []string{
	string(FormatKindRaw),
	string(FormatKindRawXz),
	string(FormatKindQcow2),
	string(FormatKindVdi),
	string(FormatKindVmdk),
	string(FormatKindVpc),
}

func SupportedFormatKinds() []string {
	return supportedFormatKinds
}

func (f FormatKind) IsValid() error {
	if !slices.Contains(supportedFormatKinds, string(f)) {
		return fmt.Errorf("invalid format (%s): must be one of %v", f, supportedFormatKinds)
	}
	return nil
}

func (f FormatKind) ConversionMethod() ConversionMethod {
	return formatKinds[f].method
}

// QemuImgArgs returns the fixed extra 'qemu-img convert' arguments of the format. The returned slice is a copy.
func (f FormatKind) QemuImgArgs() []string {
	return slices.Clone(formatKinds[f].qemuArgs)
}

func (FormatKind) JSONSchema() *jsonschema.Schema {
	enum := []any(nil)
	for _, format := range supportedFormatKinds {
		enum = append(enum, format)
	}

	return &jsonschema.Schema{
		Type: "string",
		Enum: enum,
	}
}

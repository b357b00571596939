// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

var (
	// Request validation. Reported before any side effect.
	ErrInvalidOption      = NewAssemblerError("Validation:InvalidOption", "invalid assembler option")
	ErrInvalidRequestFile = NewAssemblerError("Validation:InvalidRequestFile", "failed to load request file")

	// Scratch space.
	ErrWorkspace      = NewAssemblerError("Workspace:Create", "failed to create workspace")
	ErrCreateRawImage = NewAssemblerError("Workspace:CreateRawImage", "failed to create raw image")

	// Disk layout.
	ErrPartition          = NewAssemblerError("Layout:Partition", "failed to partition disk image")
	ErrBootloaderTooLarge = NewAssemblerError("Layout:BootloaderTooLarge", "boot loader does not fit before the first partition")
	ErrBootRecord         = NewAssemblerError("Layout:BootRecord", "failed to install boot record")

	// Filesystem provisioning.
	ErrDeviceLease = NewAssemblerError("Device:Lease", "failed to lease loop device")
	ErrFormat      = NewAssemblerError("Filesystem:Format", "failed to format filesystem")
	ErrMount       = NewAssemblerError("Filesystem:Mount", "failed to populate mounted filesystem")

	// Output.
	ErrConversionFailed = NewAssemblerError("Output:ConversionFailed", "failed to convert disk image")
	ErrChecksum         = NewAssemblerError("Output:Checksum", "failed to checksum disk image")
)

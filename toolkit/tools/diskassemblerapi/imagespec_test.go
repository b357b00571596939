// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validImageSpec() ImageSpec {
	return ImageSpec{
		Format:     FormatKindRaw,
		Filename:   "disk.img",
		PtUuid:     "0x14fc63d2",
		RootFsUuid: "76a22bf4-f153-4541-b6c7-0332c0dfaeac",
		Size:       1073741824,
		RootFsType: FsKindExt4,
	}
}

func TestImageSpecIsValid(t *testing.T) {
	spec := validImageSpec()
	assert.NoError(t, spec.IsValid())
	assert.Equal(t, uint32(0x14fc63d2), spec.DiskSignature())
	assert.Equal(t, uuid.MustParse("76a22bf4-f153-4541-b6c7-0332c0dfaeac"), spec.RootFsUuidValue())
}

func TestImageSpecIsValidSizeNotSectorMultiple(t *testing.T) {
	spec := validImageSpec()
	spec.Size = 500
	assert.ErrorContains(t, spec.IsValid(), "invalid 'size' (500)")

	spec.Size = 0
	assert.ErrorContains(t, spec.IsValid(), "invalid 'size' (0)")
}

func TestImageSpecIsValidChecksSizeFirst(t *testing.T) {
	spec := validImageSpec()
	spec.Size = 1000
	spec.Format = "iso"
	spec.RootFsType = "btrfs"
	assert.ErrorContains(t, spec.IsValid(), "invalid 'size'")

	spec.Size = 1024
	assert.ErrorContains(t, spec.IsValid(), "invalid 'format'")

	spec.Format = FormatKindVpc
	assert.ErrorContains(t, spec.IsValid(), "invalid 'root_fs_type'")
}

func TestImageSpecRootFsTypeDefaultsToExt4(t *testing.T) {
	spec := validImageSpec()
	spec.RootFsType = ""
	assert.NoError(t, spec.IsValid())
	assert.Equal(t, FsKindExt4, spec.RootFsKind())
}

func TestImageSpecIsValidFilename(t *testing.T) {
	for _, filename := range []string{"", ".", "..", "out/disk.img", "/disk.img"} {
		spec := validImageSpec()
		spec.Filename = filename
		assert.ErrorContains(t, spec.IsValid(), "invalid 'filename'", filename)
	}
}

func TestImageSpecIsValidPtUuid(t *testing.T) {
	for _, ptUuid := range []string{"", "14fc63d2", "0x14fc63d", "0x14fc63d2a", "0xzzzzzzzz"} {
		spec := validImageSpec()
		spec.PtUuid = ptUuid
		assert.ErrorContains(t, spec.IsValid(), "invalid 'ptuuid'", ptUuid)
	}

	spec := validImageSpec()
	spec.PtUuid = "0xDEADBEEF"
	assert.NoError(t, spec.IsValid())
	assert.Equal(t, uint32(0xdeadbeef), spec.DiskSignature())
}

func TestImageSpecIsValidRootFsUuid(t *testing.T) {
	spec := validImageSpec()
	spec.RootFsUuid = "not-a-uuid"
	assert.ErrorContains(t, spec.IsValid(), "invalid 'root_fs_uuid'")
}

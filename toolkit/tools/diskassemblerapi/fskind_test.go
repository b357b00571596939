// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFsKindTable(t *testing.T) {
	assert.Equal(t, "mkfs.ext4", FsKindExt4.MkfsCommand())
	assert.Equal(t, []string{"-U", "7d1b4bbb-63b1-4d2c-9c1f-eb8ba8fe2a45", "/dev/loop3"},
		FsKindExt4.MkfsArgs("7d1b4bbb-63b1-4d2c-9c1f-eb8ba8fe2a45", "/dev/loop3"))
	assert.Equal(t, "ext2", FsKindExt4.GrubModule())

	assert.Equal(t, "mkfs.xfs", FsKindXfs.MkfsCommand())
	assert.Equal(t, []string{"-m", "uuid=7d1b4bbb-63b1-4d2c-9c1f-eb8ba8fe2a45", "/dev/loop3"},
		FsKindXfs.MkfsArgs("7d1b4bbb-63b1-4d2c-9c1f-eb8ba8fe2a45", "/dev/loop3"))
	assert.Equal(t, "xfs", FsKindXfs.GrubModule())
}

func TestFsKindIsValid(t *testing.T) {
	assert.NoError(t, FsKindExt4.IsValid())
	assert.NoError(t, FsKindXfs.IsValid())
	assert.ErrorContains(t, FsKind("btrfs").IsValid(), "invalid root filesystem type (btrfs)")
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

type FsKind string

const (
	FsKindExt4 FsKind = "ext4"
	FsKindXfs  FsKind = "xfs"
)

type fsKindInfo struct {
	mkfsCommand string
	// "%s" is replaced by the filesystem UUID.
	mkfsUuidArgs []string
	// GRUB module that can read the filesystem.
	grubModule string
}

var fsKinds = map[FsKind]fsKindInfo{
	FsKindExt4: {
		mkfsCommand:  "mkfs.ext4",
		mkfsUuidArgs: []string{"-U", "%s"},
		grubModule:   "ext2",
	},
	FsKindXfs: {
		mkfsCommand:  "mkfs.xfs",
		mkfsUuidArgs: []string{"-m", "uuid=%s"},
		grubModule:   "xfs",
	},
}

var supportedFsKinds = []string{
	string(FsKindExt4),
	string(FsKindXfs),
}

func SupportedFsKinds() []string {
	return supportedFsKinds
}

func (k FsKind) IsValid() error {
	if !slices.Contains(supportedFsKinds, string(k)) {
		return fmt.Errorf("invalid root filesystem type (%s): must be one of %v", k, supportedFsKinds)
	}
	return nil
}

func (k FsKind) MkfsCommand() string {
	return fsKinds[k].mkfsCommand
}

// MkfsArgs returns the formatter arguments that create a filesystem with the given UUID on devicePath.
func (k FsKind) MkfsArgs(fsUuid string, devicePath string) []string {
	args := []string(nil)
	for _, arg := range fsKinds[k].mkfsUuidArgs {
		args = append(args, strings.ReplaceAll(arg, "%s", fsUuid))
	}
	args = append(args, devicePath)
	return args
}

func (k FsKind) GrubModule() string {
	return fsKinds[k].grubModule
}

func (FsKind) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{string(FsKindExt4), string(FsKindXfs)},
	}
}

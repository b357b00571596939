// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
)

const (
	SectorSize = 512

	// MBR disk signatures are 32 bits.
	ptUuidHexDigits = 8
)

// ImageSpec describes the disk image to assemble.
type ImageSpec struct {
	Format     FormatKind `yaml:"format" json:"format" jsonschema:"required"`
	Filename   string     `yaml:"filename" json:"filename" jsonschema:"required"`
	PtUuid     string     `yaml:"ptuuid" json:"ptuuid" jsonschema:"required,pattern=^0x[0-9a-fA-F]{8}$"`
	RootFsUuid string     `yaml:"root_fs_uuid" json:"root_fs_uuid" jsonschema:"required,format=uuid"`
	Size       uint64     `yaml:"size" json:"size" jsonschema:"required,minimum=512,multipleOf=512"`
	RootFsType FsKind     `yaml:"root_fs_type" json:"root_fs_type,omitempty"`
}

// IsValid checks the size, the format and the filesystem type, in that order, and then the identifiers.
func (s *ImageSpec) IsValid() error {
	if s.Size == 0 || s.Size%SectorSize != 0 {
		return fmt.Errorf("invalid 'size' (%d): must be a positive multiple of %d", s.Size, SectorSize)
	}

	err := s.Format.IsValid()
	if err != nil {
		return fmt.Errorf("invalid 'format' field:\n%w", err)
	}

	err = s.RootFsKind().IsValid()
	if err != nil {
		return fmt.Errorf("invalid 'root_fs_type' field:\n%w", err)
	}

	err = validateFilename(s.Filename)
	if err != nil {
		return fmt.Errorf("invalid 'filename' field:\n%w", err)
	}

	_, err = parsePtUuid(s.PtUuid)
	if err != nil {
		return fmt.Errorf("invalid 'ptuuid' field:\n%w", err)
	}

	_, err = uuid.Parse(s.RootFsUuid)
	if err != nil {
		return fmt.Errorf("invalid 'root_fs_uuid' field (%s):\n%w", s.RootFsUuid, err)
	}

	return nil
}

func validateFilename(filename string) error {
	switch {
	case filename == "":
		return fmt.Errorf("value is empty")

	case filename == "." || filename == "..":
		return fmt.Errorf("(%s) is not a file name", filename)

	case strings.ContainsRune(filename, filepath.Separator) || strings.ContainsRune(filename, 0):
		return fmt.Errorf("(%s) must be a file name, not a path", filename)

	default:
		return nil
	}
}

func parsePtUuid(ptUuid string) (uint32, error) {
	digits, found := strings.CutPrefix(strings.ToLower(ptUuid), "0x")
	if !found || len(digits) != ptUuidHexDigits || !govalidator.IsHexadecimal(digits) {
		return 0, fmt.Errorf("(%s) must be '0x' followed by %d hex digits", ptUuid, ptUuidHexDigits)
	}

	value, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("(%s) is not a 32-bit value:\n%w", ptUuid, err)
	}

	return uint32(value), nil
}

// DiskSignature returns the MBR disk signature encoded by 'ptuuid'. Only valid after IsValid succeeds.
func (s *ImageSpec) DiskSignature() uint32 {
	value, _ := parsePtUuid(s.PtUuid)
	return value
}

// RootFsUuidValue returns the parsed 'root_fs_uuid'. Only valid after IsValid succeeds.
func (s *ImageSpec) RootFsUuidValue() uuid.UUID {
	value, _ := uuid.Parse(s.RootFsUuid)
	return value
}

// RootFsKind returns the root filesystem type, defaulting to ext4 when 'root_fs_type' is omitted.
func (s *ImageSpec) RootFsKind() FsKind {
	if s.RootFsType == "" {
		return FsKindExt4
	}
	return s.RootFsType
}

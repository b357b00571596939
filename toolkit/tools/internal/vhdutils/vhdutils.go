// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package vhdutils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	VhdFooterSize    = 512
	VhdFileSignature = "conectix"
	VhdFileVersion   = 0x00010000

	VhdDiskTypeFixed   = 2
	VhdDiskTypeDynamic = 3
)

type VhdFooter struct {
	Cookie             [8]byte
	Features           uint32
	FileFormatVersion  uint32
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication [4]byte
	CreatorVersion     [4]byte
	CreatorHostOS      [4]byte
	OriginalSize       uint64
	CurrentSize        uint64
	Cylinder           uint16
	Heads              uint8
	SectorsPerCylinder uint8
	DiskType           uint32
	Checksum           [4]byte
	UniqueId           [16]byte
	SavedState         uint8
	Reserved           [427]byte
}

var (
	ErrVhdFileTooSmall       = errors.New("file is too small to be a VHD")
	ErrVhdWrongFileSignature = errors.New("footer does not have correct VHD file signature")
	ErrVhdWrongFileVersion   = errors.New("VHD footer has unsupported file format version")
	ErrVhdNotFixed           = errors.New("VHD is not a fixed-size disk")
	ErrVhdSizeMismatch       = errors.New("VHD current size does not match the expected disk size")
	ErrVhdUsesDiskGeometry   = errors.New("VHD size is derived from disk geometry")
)

type VhdFileType int

const (
	VhdFileTypeNone VhdFileType = iota
	VhdFileTypeCurrentSize
	VhdFileTypeDiskGeometry
)

func GetVhdFileType(filename string) (VhdFileType, error) {
	footer, err := ParseVhdFileFooter(filename)
	if errors.Is(err, ErrVhdFileTooSmall) || errors.Is(err, ErrVhdWrongFileSignature) {
		// Not a VHD file.
		return VhdFileTypeNone, nil
	}
	if err != nil {
		return VhdFileTypeNone, err
	}

	return footer.sizeCalcType(), nil
}

func (footer VhdFooter) sizeCalcType() VhdFileType {
	creatorApplication := string(footer.CreatorApplication[:])

	//   There are actually two different ways of calculating the disk size of a VHD file. The old method, which is
	// used by Microsoft Virtual PC, uses the VHD's footer's 'Disk Geometry' (cylinder, heads, and sectors per
	// track/cylinder) fields. Using 'Disk Geometry' limits what file sizes are possible. So, Hyper-V uses only uses the
	// the 'Current Size' field, which allows it to accept disks of any size.
	//   Microsoft Virtual PC is pretty dead at this point. So, it is fairly safe to assume that almost all VHD files
	// use the Hyper-V format. Unfortunately, qemu-img still defaults to using 'Disk Geometry' when a user requests a
	// VHD (i.e. 'vpc') image unless the 'force_size' option is passed.
	//   Fortunately, qemu-img is nice enough to use different values of the 'Creator Application' field depending on
	// the value of 'force_size'. Specifically, "qemu" for 'Disk Geometry' and "qem2 " for 'Current Size'. This can be
	// used to determine which type of VHD we are dealing with.
	//   qemu-img uses the 'Creator Application' field internally to determine what type of VHD it is dealing with.
	// However, if it sees a 'Creator Application' value it doesn't recognize, it will assume it uses 'Disk Geometry'.
	// Whereas, nowadays it is more likely for a VHD to use 'Current Size'.
	switch creatorApplication {
	case "vpc ", "vs  ", "qemu":
		return VhdFileTypeDiskGeometry

	default:
		return VhdFileTypeCurrentSize
	}
}

// VerifyFixedVhd checks that a VHD is a fixed disk whose 'Current Size' is exactly diskSize bytes, as produced by
// 'qemu-img convert -O vpc -o subformat=fixed,force_size'.
func VerifyFixedVhd(filename string, diskSize uint64) error {
	footer, err := ParseVhdFileFooter(filename)
	if err != nil {
		return err
	}

	if footer.DiskType != VhdDiskTypeFixed {
		return fmt.Errorf("%w (type=%d)", ErrVhdNotFixed, footer.DiskType)
	}

	if footer.sizeCalcType() != VhdFileTypeCurrentSize {
		return fmt.Errorf("%w (creator='%s')", ErrVhdUsesDiskGeometry, string(footer.CreatorApplication[:]))
	}

	if footer.CurrentSize != diskSize {
		return fmt.Errorf("%w (expected=%d, actual=%d)", ErrVhdSizeMismatch, diskSize, footer.CurrentSize)
	}

	return nil
}

func ParseVhdFileFooter(filename string) (VhdFooter, error) {
	fd, err := os.Open(filename)
	if err != nil {
		return VhdFooter{}, err
	}
	defer fd.Close()

	stat, err := fd.Stat()
	if err != nil {
		return VhdFooter{}, err
	}

	if stat.Size() < VhdFooterSize {
		return VhdFooter{}, ErrVhdFileTooSmall
	}

	_, err = fd.Seek(-VhdFooterSize, io.SeekEnd)
	if err != nil {
		return VhdFooter{}, err
	}

	footerBytes := [VhdFooterSize]byte{}
	_, err = io.ReadFull(fd, footerBytes[:])
	if err != nil {
		return VhdFooter{}, err
	}

	return parseVhdFooter(footerBytes[:])
}

func parseVhdFooter(footerBytes []byte) (VhdFooter, error) {
	var footer VhdFooter
	err := binary.Read(bytes.NewReader(footerBytes), binary.BigEndian, &footer)
	if err != nil {
		return VhdFooter{}, err
	}

	if string(footer.Cookie[:]) != VhdFileSignature {
		return VhdFooter{}, ErrVhdWrongFileSignature
	}

	if footer.FileFormatVersion != VhdFileVersion {
		return VhdFooter{}, ErrVhdWrongFileVersion
	}

	return footer, nil
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Leases of loop block devices bound to a byte range of a regular file.

package loopback

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
)

// Range is a byte range of a backing file.
type Range struct {
	Offset uint64
	Size   uint64
}

func (r *Range) String() string {
	if r == nil {
		return "whole file"
	}
	return fmt.Sprintf("offset=%d, size=%d", r.Offset, r.Size)
}

// Broker hands out loop devices. A nil range spans the whole backing file.
// Overlapping leases on the same file are not arbitrated.
type Broker interface {
	Acquire(ctx context.Context, backingFilePath string, byteRange *Range) (*Lease, error)
}

// Lease is exclusive access to a byte range of a file through a block device node. Close must be called on every
// exit path; CleanClose should be called on the success path so that release errors are reported.
type Lease struct {
	backingFilePath string
	byteRange       *Range
	devicePath      string

	releaseLock sync.Mutex
	release     func() error
}

// NewLease wraps a device bound by a Broker. release is called at most once successfully.
func NewLease(backingFilePath string, byteRange *Range, devicePath string, release func() error) *Lease {
	return &Lease{
		backingFilePath: backingFilePath,
		byteRange:       byteRange,
		devicePath:      devicePath,
		release:         release,
	}
}

func (l *Lease) BackingFilePath() string {
	return l.backingFilePath
}

// Range returns the leased byte range, or nil for the whole file.
func (l *Lease) Range() *Range {
	return l.byteRange
}

func (l *Lease) DevicePath() string {
	return l.devicePath
}

// Close releases the lease on a best-effort basis.
func (l *Lease) Close() {
	err := l.CleanClose()
	if err != nil {
		logger.Log.Warnf("Failed to release loop device (%s):\n%v", l.devicePath, err)
	}
}

// CleanClose releases the lease. Calling it again after a successful release is a no-op.
func (l *Lease) CleanClose() error {
	l.releaseLock.Lock()
	defer l.releaseLock.Unlock()

	if l.release == nil {
		return nil
	}

	logger.Log.Debugf("Releasing loop device (%s) for (%s)", l.devicePath, l.backingFilePath)

	err := l.release()
	if err != nil {
		return err
	}

	l.release = nil
	return nil
}

func devicePathFromName(devName string) string {
	if filepath.IsAbs(devName) {
		return devName
	}
	return filepath.Join("/dev", devName)
}

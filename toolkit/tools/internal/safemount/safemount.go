// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package safemount

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/processes"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/retry"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

const (
	unmountAttempts = 5
	unmountDelay    = 200 * time.Millisecond
)

// Mount is a scoped mount. Close must be called on every exit path; CleanClose should be called on the success path
// so that unmount errors are reported.
type Mount struct {
	source     string
	target     string
	isMounted  bool
	dirCreated bool
}

// NewMount mounts source at target. If makeAndDeleteDir is set, target is created and removed again on close.
func NewMount(source, target, fstype string, flags uintptr, data string, makeAndDeleteDir bool) (*Mount, error) {
	m := &Mount{
		source: source,
		target: target,
	}

	err := m.attach(fstype, flags, data, makeAndDeleteDir)
	if err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// NewReadOnlyBindMount bind mounts source at target and then makes the bind mount read-only.
func NewReadOnlyBindMount(source, target string, makeAndDeleteDir bool) (*Mount, error) {
	m, err := NewMount(source, target, "", unix.MS_BIND, "", makeAndDeleteDir)
	if err != nil {
		return nil, err
	}

	// MS_RDONLY is ignored on the initial bind mount call, so a remount is required.
	err = unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, "")
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to make bind mount (%s) read-only:\n%w", target, err)
	}

	return m, nil
}

func (m *Mount) Target() string {
	return m.target
}

func (m *Mount) Source() string {
	return m.source
}

// Close unmounts on a best-effort basis, falling back to a lazy unmount.
func (m *Mount) Close() {
	err := m.close(true /*lazyFallback*/)
	if err != nil {
		logger.Log.Warnf("Failed to close mount (%s):\n%v", m.target, err)
	}
}

// CleanClose unmounts and returns any error.
func (m *Mount) CleanClose() error {
	return m.close(false /*lazyFallback*/)
}

func (m *Mount) attach(fstype string, flags uintptr, data string, makeAndDeleteDir bool) error {
	if makeAndDeleteDir {
		err := os.MkdirAll(m.target, os.ModePerm)
		if err != nil {
			return fmt.Errorf("failed to create mount directory (%s):\n%w", m.target, err)
		}
		m.dirCreated = true
	}

	logger.Log.Debugf("Mounting (%s) at (%s)", m.source, m.target)

	err := unix.Mount(m.source, m.target, fstype, flags, data)
	if err != nil {
		return fmt.Errorf("failed to mount (%s) to (%s):\n%w", m.source, m.target, err)
	}
	m.isMounted = true

	return nil
}

func (m *Mount) close(lazyFallback bool) error {
	if m.isMounted {
		err := unmount(m.target, lazyFallback)
		if err != nil {
			return err
		}
		m.isMounted = false
	}

	if m.dirCreated {
		err := os.Remove(m.target)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete mount directory (%s):\n%w", m.target, err)
		}
		m.dirCreated = false
	}

	return nil
}

func unmount(target string, lazyFallback bool) error {
	logger.Log.Debugf("Unmounting (%s)", target)

	err := retry.Run(func() error {
		err := unix.Unmount(target, 0)
		switch {
		case err == nil:
			return nil

		case errors.Is(err, unix.EBUSY):
			return err

		case errors.Is(err, unix.EINVAL):
			// Not a mount point. Check whether something else already unmounted it.
			mounted, mountedErr := mountinfo.Mounted(target)
			if mountedErr == nil && !mounted {
				return nil
			}
			return retry.Permanent(err)

		default:
			return retry.Permanent(err)
		}
	}, unmountAttempts, unmountDelay)
	if err == nil {
		return nil
	}

	if errors.Is(err, unix.EBUSY) {
		processes.LogProcessesUsingPath(target)
	}

	if lazyFallback {
		lazyErr := unix.Unmount(target, unix.MNT_DETACH)
		if lazyErr == nil {
			logger.Log.Warnf("Lazily unmounted busy mount (%s)", target)
			return nil
		}
	}

	return fmt.Errorf("failed to unmount (%s):\n%w", target, err)
}

// IsMounted reports whether path is a mount point.
func IsMounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false, fmt.Errorf("failed to read mount info for (%s):\n%w", path, err)
	}
	return mounted, nil
}

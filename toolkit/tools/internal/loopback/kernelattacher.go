// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package loopback

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/retry"
	"golang.org/x/sys/unix"
)

const (
	loopControlPath = "/dev/loop-control"

	// Another process can grab the free device between LOOP_CTL_GET_FREE and LOOP_SET_FD.
	attachAttempts = 10
)

// KernelAttacher manages loop devices directly with ioctls on /dev/loop-control and /dev/loopN.
type KernelAttacher struct{}

func (KernelAttacher) Attach(backingFile *os.File, offset uint64, sizeLimit uint64) (string, error) {
	control, err := os.OpenFile(loopControlPath, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("failed to open (%s):\n%w", loopControlPath, err)
	}
	defer control.Close()

	for range attachAttempts {
		number, err := unix.IoctlRetInt(int(control.Fd()), unix.LOOP_CTL_GET_FREE)
		if err != nil {
			return "", fmt.Errorf("failed to find a free loop device:\n%w", err)
		}

		devName := fmt.Sprintf("loop%d", number)
		err = setFd(devName, backingFile, offset, sizeLimit)
		if errors.Is(err, unix.EBUSY) {
			logger.Log.Debugf("Loop device (%s) was taken, retrying", devName)
			continue
		}
		if err != nil {
			return "", err
		}

		return devName, nil
	}

	return "", fmt.Errorf("failed to attach a loop device after %d attempts", attachAttempts)
}

func setFd(devName string, backingFile *os.File, offset uint64, sizeLimit uint64) error {
	devicePath := devicePathFromName(devName)

	device, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open loop device (%s):\n%w", devicePath, err)
	}
	defer device.Close()

	err = unix.IoctlSetInt(int(device.Fd()), unix.LOOP_SET_FD, int(backingFile.Fd()))
	if err != nil {
		return fmt.Errorf("failed to bind (%s) to loop device (%s):\n%w", backingFile.Name(), devicePath, err)
	}

	info := unix.LoopInfo64{
		Offset:    offset,
		Sizelimit: sizeLimit,
	}
	copy(info.File_name[:], backingFile.Name())

	err = unix.IoctlLoopSetStatus64(int(device.Fd()), &info)
	if err != nil {
		clearErr := unix.IoctlSetInt(int(device.Fd()), unix.LOOP_CLR_FD, 0)
		if clearErr != nil {
			logger.Log.Warnf("Failed to unbind loop device (%s):\n%v", devicePath, clearErr)
		}
		return fmt.Errorf("failed to set range on loop device (%s):\n%w", devicePath, err)
	}

	return nil
}

func (KernelAttacher) Detach(devName string) error {
	devicePath := devicePathFromName(devName)

	device, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open loop device (%s):\n%w", devicePath, err)
	}
	defer device.Close()

	// The kernel refuses while the device is briefly held by udev probing.
	err = retry.Run(func() error {
		err := unix.IoctlSetInt(int(device.Fd()), unix.LOOP_CLR_FD, 0)
		if errors.Is(err, unix.ENXIO) {
			// Not bound.
			return nil
		}
		if err != nil && !errors.Is(err, unix.EBUSY) {
			return retry.Permanent(err)
		}
		return err
	}, 5, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to unbind loop device (%s):\n%w", devicePath, err)
	}

	return nil
}

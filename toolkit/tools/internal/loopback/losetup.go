// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package loopback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/retry"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/sirupsen/logrus"
)

// LosetupBroker attaches loop devices in-process with losetup. The caller must be privileged.
type LosetupBroker struct{}

func (LosetupBroker) Acquire(ctx context.Context, backingFilePath string, byteRange *Range) (*Lease, error) {
	args := losetupAttachArgs(backingFilePath, byteRange)

	stdout, _, err := shell.NewExecBuilder("losetup", args...).
		Context(ctx).
		LogLevel(logrus.DebugLevel, logrus.WarnLevel).
		ErrorStderrLines(1).
		ExecuteCaptureOuput()
	if err != nil {
		return nil, fmt.Errorf("failed to attach loop device for (%s):\n%w", backingFilePath, err)
	}

	devicePath := strings.TrimSpace(stdout)
	if devicePath == "" {
		return nil, fmt.Errorf("losetup did not report a device for (%s)", backingFilePath)
	}

	logger.Log.Debugf("Attached (%s) to (%s) (%s)", devicePath, backingFilePath, byteRange)

	release := func() error {
		return detachLoopDevice(devicePath)
	}

	return NewLease(backingFilePath, byteRange, devicePath, release), nil
}

func losetupAttachArgs(backingFilePath string, byteRange *Range) []string {
	args := []string{"--show", "-f"}
	if byteRange != nil {
		args = append(args,
			"-o", strconv.FormatUint(byteRange.Offset, 10),
			"--sizelimit", strconv.FormatUint(byteRange.Size, 10))
	}
	args = append(args, backingFilePath)
	return args
}

func detachLoopDevice(devicePath string) error {
	err := shell.NewExecBuilder("losetup", "-d", devicePath).
		LogLevel(logrus.DebugLevel, logrus.WarnLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to detach loop device (%s):\n%w", devicePath, err)
	}

	return waitForLoopbackToDetach(devicePath)
}

// waitForLoopbackToDetach waits until losetup no longer lists the device. 'losetup -d' only marks the device for
// autoclear while it is still open.
func waitForLoopbackToDetach(devicePath string) error {
	err := retry.Run(func() error {
		stdout, _, err := shell.Execute("losetup", "--list", "--noheadings", "--output", "NAME")
		if err != nil {
			return retry.Permanent(err)
		}

		for _, line := range strings.Split(stdout, "\n") {
			if strings.TrimSpace(line) == devicePath {
				return fmt.Errorf("loop device (%s) is still attached", devicePath)
			}
		}
		return nil
	}, 50, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to wait for loop device (%s) to detach:\n%w", devicePath, err)
	}

	return nil
}

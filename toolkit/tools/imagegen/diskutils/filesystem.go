// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskutils

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/version"
	"github.com/sirupsen/logrus"
)

var (
	// For example: mke2fs 1.47.0 (5-Feb-2023)
	mke2fsVersionRegex = regexp.MustCompile(`(?m)^mke2fs (\d+)\.(\d+)\.(\d+) \(\d+-[a-zA-Z]+-\d+\)$`)

	// For example: mkfs.xfs version 6.5.0
	mkfsXfsVersionRegex = regexp.MustCompile(`(?m)^mkfs\.xfs version (\d+)\.(\d+)\.(\d+)$`)
)

// FormatDevice runs an mkfs program against a block device. mkfs may ask for confirmation when the device looks
// like it already holds data, so "y" is fed on stdin.
func FormatDevice(ctx context.Context, mkfsCommand string, mkfsArgs []string) error {
	logger.Log.Debugf("Formatting: %s", shell.CommandLine(mkfsCommand, mkfsArgs...))

	err := shell.NewExecBuilder(mkfsCommand, mkfsArgs...).
		Context(ctx).
		Stdin("y\n").
		LogLevel(logrus.DebugLevel, logrus.DebugLevel).
		WarnLogLines(shell.DefaultWarnLogLines).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to format with (%s):\n%w", mkfsCommand, err)
	}

	return nil
}

// Get the version of mkfs.ext4
func GetMke2fsVersion() (version.Version, error) {
	_, stderr, err := shell.Execute("mke2fs", "-V")
	if err != nil {
		return nil, fmt.Errorf("failed to get mke2fs's version:\n%w", err)
	}

	return parseToolVersion("mke2fs", mke2fsVersionRegex, stderr)
}

// Get the version of mkfs.xfs
func GetMkfsXfsVersion() (version.Version, error) {
	stdout, _, err := shell.Execute("mkfs.xfs", "-V")
	if err != nil {
		return nil, fmt.Errorf("failed to get mkfs.xfs's version:\n%w", err)
	}

	return parseToolVersion("mkfs.xfs", mkfsXfsVersionRegex, stdout)
}

func parseToolVersion(tool string, versionRegex *regexp.Regexp, output string) (version.Version, error) {
	fullVersionString := strings.TrimSpace(output)

	match := versionRegex.FindStringSubmatch(fullVersionString)
	if match == nil {
		return nil, fmt.Errorf("failed to parse %s's version (%s)", tool, fullVersionString)
	}

	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	patch, _ := strconv.Atoi(match[3])
	return version.Version{major, minor, patch}, nil
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

import (
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/osinfo"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
)

type toolVersionQuery struct {
	tool        string
	versionFlag string
}

var toolVersionQueries = []toolVersionQuery{
	{"sfdisk", "--version"},
	{"flock", "--version"},
	{"losetup", "--version"},
	{"blkid", "--version"},
	{"cp", "--version"},
	{"qemu-img", "--version"},
	{"lsof", "-v"},
	{"grub2-mkimage", "--version"},
	{"grub-mkimage", "--version"},
	{"mkfs.ext4", "-V"},
	{"mkfs.xfs", "-V"},
}

// LogVersionsOfToolDeps logs the host OS and the versions of the external tools the assembler runs.
func LogVersionsOfToolDeps() {
	distro, version := osinfo.GetDistroAndVersion()
	logger.Log.Debugf("Host OS distro: %s", distro)
	logger.Log.Debugf("Host OS version: %s", version)

	logger.Log.Debugf("Host Tools:")
	for _, query := range toolVersionQueries {
		toolVersion, err := getToolVersion(query.tool, query.versionFlag)
		if err != nil {
			logger.Log.Debugf("%s: not installed or error retrieving version", query.tool)
			continue
		}
		logger.Log.Debugf("%s: %s", query.tool, toolVersion)
	}
}

// getToolVersion returns the first line that the tool prints for its version flag. Some tools (mkfs.*, lsof) print
// it on stderr.
func getToolVersion(tool string, versionFlag string) (string, error) {
	stdout, stderr, err := shell.Execute(tool, versionFlag)
	if err != nil {
		return "", err
	}

	output := stdout
	if strings.TrimSpace(output) == "" {
		output = stderr
	}

	firstLine, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	return firstLine, nil
}

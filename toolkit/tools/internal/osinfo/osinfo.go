// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package osinfo

import (
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/envfile"
)

const (
	osReleasePath = "/etc/os-release"

	unknownDistro  = "Unknown Distro"
	unknownVersion = "Unknown Version"
)

// GetDistroAndVersion returns the distribution and version of the host machine.
func GetDistroAndVersion() (string, string) {
	return getDistroAndVersion(osReleasePath)
}

func getDistroAndVersion(path string) (string, string) {
	env, err := envfile.ParseEnvFile(path)
	if err != nil {
		return unknownDistro, unknownVersion
	}

	distro := env["NAME"]
	if distro == "" {
		distro = unknownDistro
	}

	version := env["VERSION"]
	if version == "" {
		version = env["VERSION_ID"]
	}
	if version == "" {
		version = unknownVersion
	}

	return distro, version
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package exe defines QoL functions to simplify and unify creating kingpin executables
package exe

import (
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"gopkg.in/alecthomas/kingpin.v2"
)

const ToolkitVersion = "0.1.0"

func SetupLogFlags(k *kingpin.Application) *logger.LogFlags {
	lf := &logger.LogFlags{}
	lf.LogColor = k.Flag(logger.ColorFlag, logger.ColorFlagHelp).PlaceHolder(logger.ColorsPlaceholder).Enum(logger.Colors()...)
	lf.LogFile = k.Flag(logger.FileFlag, logger.FileFlagHelp).String()
	lf.LogLevel = k.Flag(logger.LevelsFlag, logger.LevelsHelp).PlaceHolder(logger.LevelsPlaceholder).Enum(logger.Levels()...)
	return lf
}

// SetupVersion adds a '--version' flag that prints the toolkit version.
func SetupVersion(k *kingpin.Application) {
	k.Version(ToolkitVersion)
}

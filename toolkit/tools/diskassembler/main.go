// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Tool to assemble a bootable disk image from a filesystem tree

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/diskassemblerapi"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/checksum"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/exe"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/exekong"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/ptrutils"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/telemetry"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/pkg/diskassemblerlib"
)

type AssembleCmd struct {
	RequestFile       string `name:"request" help:"Path of the assemble request file (YAML or JSON)." required:""`
	BuildDir          string `name:"build-dir" help:"Directory to run build out of." required:""`
	LoopBrokerSocket  string `name:"loop-broker-socket" help:"Unix socket of the loop broker daemon. When not set, loop devices are attached with losetup."`
	ScratchPolicy     string `name:"scratch-policy" placeholder:"(always|on-success|never)" help:"When to remove the build workspace." enum:"${scratchpolicy}" default:"always"`
	GrubModuleDir     string `name:"grub-module-dir" help:"Directory containing GRUB's i386-pc modules." default:"${grubmoduledir}"`
	ChecksumAlgorithm string `name:"checksum-algorithm" placeholder:"(md5|sha1|sha256|sha384|sha512)" help:"Algorithm of the reported output checksum." enum:"${checksumalgorithm}" default:"sha256"`
	DisableTelemetry  bool   `name:"disable-telemetry" help:"Disable telemetry collection of the tool."`
}

type VerifyChecksumCmd struct {
	File     string `name:"file" help:"File to verify." required:""`
	Checksum string `name:"checksum" placeholder:"<algorithm>:<hex>" help:"Expected checksum." required:""`
}

type RootCmd struct {
	Version        kong.VersionFlag  `name:"version" help:"Print version and exit."`
	Assemble       AssembleCmd       `cmd:"" help:"Assemble a bootable disk image."`
	VerifyChecksum VerifyChecksumCmd `cmd:"" name:"verify-checksum" help:"Verify the checksum of an assembled image."`
	exekong.LogFlags
}

func main() {
	ctx := context.Background()

	cli := &RootCmd{}

	vars := kong.Vars{
		"scratchpolicy":     strings.Join(diskassemblerapi.SupportedScratchPolicies(), ","),
		"grubmoduledir":     diskassemblerlib.DefaultGrubModuleDir,
		"checksumalgorithm": strings.Join(checksum.Algorithms(), ","),
	}
	maps.Copy(vars, exekong.KongVars)
	if diskassemblerlib.ToolVersion != "" {
		vars["version"] = diskassemblerlib.ToolVersion
	}

	parseContext := kong.Parse(cli,
		kong.Name("diskassembler"),
		kong.Description("Assembles a bootable, partitioned disk image from a filesystem tree."),
		vars,
		kong.HelpOptions{
			Compact:   true,
			FlagsLast: true,
		},
		kong.UsageOnError())

	logger.InitBestEffort(ptrutils.PtrTo(cli.LogFlags.AsLoggerFlags()))

	switch parseContext.Command() {
	case "assemble":
		err := assemble(ctx, &cli.Assemble)
		if err != nil {
			log.Fatalf("disk assembly failed:\n%v", err)
		}

	case "verify-checksum":
		err := checksum.VerifyFile(cli.VerifyChecksum.File, cli.VerifyChecksum.Checksum)
		if err != nil {
			log.Fatalf("checksum verification failed:\n%v", err)
		}
		logger.Log.Infof("Checksum of (%s) matches", cli.VerifyChecksum.File)

	default:
		log.Fatalf("unknown command (%s)", parseContext.Command())
	}
}

func assemble(ctx context.Context, cmd *AssembleCmd) (err error) {
	if os.Geteuid() != 0 {
		return fmt.Errorf("diskassembler must be run as root")
	}

	toolVersion := diskassemblerlib.ToolVersion
	if toolVersion == "" {
		toolVersion = exe.ToolkitVersion
	}

	err = telemetry.InitTelemetry(cmd.DisableTelemetry, "diskassembler", toolVersion)
	if err != nil {
		logger.Log.Warnf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownErr := telemetry.ShutdownTelemetry(ctx)
		if shutdownErr != nil {
			logger.Log.Warnf("Failed to shutdown telemetry: %v", shutdownErr)
		}
	}()

	diskassemblerlib.LogVersionsOfToolDeps()

	result, err := diskassemblerlib.AssembleWithRequestFile(ctx, cmd.RequestFile, diskassemblerlib.AssembleOptions{
		BuildDir:          cmd.BuildDir,
		LoopBrokerSocket:  cmd.LoopBrokerSocket,
		ScratchPolicy:     diskassemblerapi.ScratchPolicy(cmd.ScratchPolicy),
		GrubModuleDir:     cmd.GrubModuleDir,
		ChecksumAlgorithm: checksum.Algorithm(cmd.ChecksumAlgorithm),
	})
	if err != nil {
		return err
	}

	resultJson, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result:\n%w", err)
	}

	fmt.Println(string(resultJson))
	return nil
}

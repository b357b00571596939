// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Privileged daemon that binds loop devices to file descriptors passed by unprivileged clients

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/exe"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/loopback"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("loopbroker", "Hands out loop devices over a unix socket")

	socketPath = app.Flag("socket", "Path of the unix socket to listen on.").Default(loopback.DefaultSocketPath).String()
	logFlags   = exe.SetupLogFlags(app)
)

func main() {
	exe.SetupVersion(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger.InitBestEffort(logFlags)

	err := serve()
	if err != nil {
		log.Fatalf("loop broker failed:\n%v", err)
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := loopback.Listen(*socketPath)
	if err != nil {
		return err
	}

	logger.Log.Infof("Listening on (%s)", *socketPath)

	server := loopback.NewServer(loopback.KernelAttacher{})
	return server.Serve(ctx, listener)
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package loopback

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
)

const (
	DefaultSocketPath = "/run/diskassembler/loopbroker.sock"

	defaultRequestTimeout = 30 * time.Second
)

// SocketBroker asks a loop broker daemon, listening on a unix socket, to attach and release loop devices. The
// daemon holds the privilege to manage loop devices. The client only needs read/write access to the backing file.
type SocketBroker struct {
	socketPath     string
	requestTimeout time.Duration
}

func NewSocketBroker(socketPath string) *SocketBroker {
	return &SocketBroker{
		socketPath:     socketPath,
		requestTimeout: defaultRequestTimeout,
	}
}

func (b *SocketBroker) SocketPath() string {
	return b.socketPath
}

func (b *SocketBroker) Acquire(ctx context.Context, backingFilePath string, byteRange *Range) (*Lease, error) {
	backingFile, err := os.OpenFile(backingFilePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open loop device backing file (%s):\n%w", backingFilePath, err)
	}
	defer backingFile.Close()

	request := brokerRequest{
		Operation: OperationAttach,
		Fd:        new(int),
	}
	if byteRange != nil {
		request.Offset = byteRange.Offset
		request.SizeLimit = byteRange.Size
	}

	logger.Log.Debugf("Requesting loop device from broker (%s) for (%s) (%s)", b.socketPath, backingFilePath,
		byteRange)

	reply, err := b.roundTrip(ctx, request, backingFile)
	if err != nil {
		return nil, err
	}

	if reply.DevName == "" {
		return nil, fmt.Errorf("loop broker did not return a device name")
	}

	devName := reply.DevName
	devicePath := devicePathFromName(devName)

	logger.Log.Debugf("Leased loop device (%s)", devicePath)

	release := func() error {
		_, err := b.roundTrip(context.Background(), brokerRequest{
			Operation: OperationRelease,
			DevName:   devName,
		})
		if err != nil {
			return fmt.Errorf("failed to release loop device (%s):\n%w", devicePath, err)
		}
		return nil
	}

	return NewLease(backingFilePath, byteRange, devicePath, release), nil
}

func (b *SocketBroker) roundTrip(ctx context.Context, request brokerRequest, files ...*os.File) (brokerReply,
	error,
) {
	dialer := net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, SocketNetwork, b.socketPath)
	if err != nil {
		return brokerReply{}, fmt.Errorf("failed to connect to loop broker (%s):\n%w", b.socketPath, err)
	}
	defer rawConn.Close()

	conn := rawConn.(*net.UnixConn)

	deadline := time.Now().Add(b.requestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	err = conn.SetDeadline(deadline)
	if err != nil {
		return brokerReply{}, fmt.Errorf("failed to set loop broker connection deadline:\n%w", err)
	}

	err = sendMessage(conn, request, files...)
	if err != nil {
		return brokerReply{}, err
	}

	reply := brokerReply{}
	passedFiles, err := receiveMessage(conn, &reply)
	if err != nil {
		return brokerReply{}, err
	}
	closeFiles(passedFiles)

	if reply.Error != "" {
		return brokerReply{}, fmt.Errorf("loop broker (%s) replied with error: %s", b.socketPath, reply.Error)
	}

	return reply, nil
}

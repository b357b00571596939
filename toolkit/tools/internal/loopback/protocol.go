// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package loopback

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Wire protocol between the broker client and the broker daemon. Each connection carries one request and one
// reply as JSON datagrams on a SOCK_SEQPACKET unix socket. Attach requests carry the backing file descriptor as
// SCM_RIGHTS ancillary data; "fd" indexes into the received descriptors.

const (
	SocketNetwork = "unixpacket"

	OperationAttach  = "attach"
	OperationRelease = "release"

	maxMessageSize = 64 * 1024
	maxOobSize     = 1024
)

type brokerRequest struct {
	Operation string `json:"op"`
	Fd        *int   `json:"fd,omitempty"`
	Offset    uint64 `json:"offset,omitempty"`
	SizeLimit uint64 `json:"sizelimit,omitempty"`
	DevName   string `json:"devname,omitempty"`
}

type brokerReply struct {
	DevName string `json:"devname,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendMessage(conn *net.UnixConn, value any, files ...*os.File) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode broker message:\n%w", err)
	}

	oob := []byte(nil)
	if len(files) > 0 {
		fds := make([]int, 0, len(files))
		for _, file := range files {
			fds = append(fds, int(file.Fd()))
		}
		oob = unix.UnixRights(fds...)
	}

	n, oobn, err := conn.WriteMsgUnix(payload, oob, nil)
	if err != nil {
		return fmt.Errorf("failed to send broker message:\n%w", err)
	}
	if n != len(payload) || oobn != len(oob) {
		return fmt.Errorf("short write of broker message (%d/%d bytes, %d/%d ancillary bytes)", n, len(payload),
			oobn, len(oob))
	}

	return nil
}

// receiveMessage reads one datagram and decodes it into value. Any descriptors passed with it are returned as files
// that the caller must close.
func receiveMessage(conn *net.UnixConn, value any) ([]*os.File, error) {
	buffer := make([]byte, maxMessageSize)
	oob := make([]byte, maxOobSize)

	n, oobn, _, _, err := conn.ReadMsgUnix(buffer, oob)
	if err != nil {
		return nil, fmt.Errorf("failed to receive broker message:\n%w", err)
	}

	files, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}

	if n == 0 {
		closeFiles(files)
		return nil, fmt.Errorf("broker peer closed the connection")
	}

	err = json.Unmarshal(buffer[:n], value)
	if err != nil {
		closeFiles(files)
		return nil, fmt.Errorf("failed to decode broker message:\n%w", err)
	}

	return files, nil
}

func parseRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ancillary data:\n%w", err)
	}

	files := []*os.File(nil)
	for i := range messages {
		fds, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("failed to parse passed file descriptors:\n%w", err)
		}

		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd)))
		}
	}

	return files, nil
}

func closeFiles(files []*os.File) {
	for _, file := range files {
		file.Close()
	}
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package loopback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
)

// Attacher binds a file to a loop device and unbinds it again.
type Attacher interface {
	// Attach returns the device name (e.g. "loop3"). A sizeLimit of 0 means up to the end of the file.
	Attach(backingFile *os.File, offset uint64, sizeLimit uint64) (string, error)
	Detach(devName string) error
}

// Server is the loop broker daemon. It serves one request per connection and only releases devices it attached.
type Server struct {
	attacher Attacher

	devicesLock sync.Mutex
	devices     map[string]struct{}
}

func NewServer(attacher Attacher) *Server {
	return &Server{
		attacher: attacher,
		devices:  make(map[string]struct{}),
	}
}

// Listen creates the unix socket. A stale socket file at path is removed first.
func Listen(path string) (*net.UnixListener, error) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket (%s):\n%w", path, err)
	}

	listener, err := net.ListenUnix(SocketNetwork, &net.UnixAddr{Name: path, Net: SocketNetwork})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on (%s):\n%w", path, err)
	}

	return listener, nil
}

// Serve accepts connections until ctx is cancelled or the listener fails. Devices still attached when Serve returns
// are detached.
func (s *Server) Serve(ctx context.Context, listener *net.UnixListener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	wg := sync.WaitGroup{}
	defer func() {
		wg.Wait()
		s.detachAll()
	}()

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept loop broker connection:\n%w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn *net.UnixConn) {
	request := brokerRequest{}
	files, err := receiveMessage(conn, &request)
	if err != nil {
		logger.Log.Warnf("Dropping loop broker request:\n%v", err)
		return
	}
	defer closeFiles(files)

	reply := s.handleRequest(request, files)

	err = sendMessage(conn, reply)
	if err != nil {
		logger.Log.Warnf("Failed to reply to loop broker request:\n%v", err)
		if reply.DevName != "" && request.Operation == OperationAttach {
			// Nobody will release it.
			s.release(reply.DevName)
		}
	}
}

func (s *Server) handleRequest(request brokerRequest, files []*os.File) brokerReply {
	switch request.Operation {
	case OperationAttach, "":
		devName, err := s.attach(request, files)
		if err != nil {
			logger.Log.Warnf("Loop attach failed:\n%v", err)
			return brokerReply{Error: err.Error()}
		}
		return brokerReply{DevName: devName}

	case OperationRelease:
		err := s.release(request.DevName)
		if err != nil {
			logger.Log.Warnf("Loop release failed:\n%v", err)
			return brokerReply{Error: err.Error()}
		}
		return brokerReply{DevName: request.DevName}

	default:
		return brokerReply{Error: fmt.Sprintf("unknown operation (%s)", request.Operation)}
	}
}

func (s *Server) attach(request brokerRequest, files []*os.File) (string, error) {
	if request.Fd == nil {
		return "", fmt.Errorf("attach request is missing 'fd'")
	}

	index := *request.Fd
	if index < 0 || index >= len(files) {
		return "", fmt.Errorf("attach request 'fd' (%d) does not match a passed file descriptor (%d passed)", index,
			len(files))
	}

	devName, err := s.attacher.Attach(files[index], request.Offset, request.SizeLimit)
	if err != nil {
		return "", err
	}

	s.devicesLock.Lock()
	s.devices[devName] = struct{}{}
	s.devicesLock.Unlock()

	logger.Log.Infof("Attached (%s) (offset=%d, sizelimit=%d)", devName, request.Offset, request.SizeLimit)
	return devName, nil
}

func (s *Server) release(devName string) error {
	s.devicesLock.Lock()
	_, found := s.devices[devName]
	if found {
		delete(s.devices, devName)
	}
	s.devicesLock.Unlock()

	if !found {
		return fmt.Errorf("device (%s) was not attached by this broker", devName)
	}

	err := s.attacher.Detach(devName)
	if err != nil {
		return err
	}

	logger.Log.Infof("Detached (%s)", devName)
	return nil
}

func (s *Server) detachAll() {
	s.devicesLock.Lock()
	devNames := make([]string, 0, len(s.devices))
	for devName := range s.devices {
		devNames = append(devNames, devName)
	}
	s.devicesLock.Unlock()

	for _, devName := range devNames {
		err := s.release(devName)
		if err != nil {
			logger.Log.Warnf("Failed to detach leftover device (%s):\n%v", devName, err)
		}
	}
}

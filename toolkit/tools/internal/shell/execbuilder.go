// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	// LogDisabledLevel turns off logging for an output stream.
	LogDisabledLevel logrus.Level = logrus.PanicLevel

	// DefaultWarnLogLines is the number of trailing stderr lines logged as warnings when a command fails.
	DefaultWarnLogLines = 1500
)

type ExecBuilder struct {
	ctx              context.Context
	command          string
	args             []string
	workingDirectory string
	environment      []string
	stdin            *string
	stdoutLogLevel   logrus.Level
	stderrLogLevel   logrus.Level
	stdoutCallback   func(line string)
	stderrCallback   func(line string)
	warnLogLines     int
	errorStderrLines int
}

// NewExecBuilder creates a builder for running an external command.
// By default, stdout and stderr are logged at debug level.
func NewExecBuilder(command string, args ...string) ExecBuilder {
	return ExecBuilder{
		ctx:            context.Background(),
		command:        command,
		args:           args,
		stdoutLogLevel: logrus.DebugLevel,
		stderrLogLevel: logrus.DebugLevel,
	}
}

// Context makes the command cancellable.
func (b ExecBuilder) Context(ctx context.Context) ExecBuilder {
	b.ctx = ctx
	return b
}

func (b ExecBuilder) WorkingDirectory(dir string) ExecBuilder {
	b.workingDirectory = dir
	return b
}

// Environment replaces the process environment of the command.
func (b ExecBuilder) Environment(env []string) ExecBuilder {
	b.environment = env
	return b
}

func (b ExecBuilder) Stdin(input string) ExecBuilder {
	b.stdin = &input
	return b
}

// LogLevel sets the levels that stdout and stderr lines are logged at.
func (b ExecBuilder) LogLevel(stdoutLogLevel logrus.Level, stderrLogLevel logrus.Level) ExecBuilder {
	b.stdoutLogLevel = stdoutLogLevel
	b.stderrLogLevel = stderrLogLevel
	return b
}

func (b ExecBuilder) StdoutCallback(callback func(line string)) ExecBuilder {
	b.stdoutCallback = callback
	return b
}

func (b ExecBuilder) StderrCallback(callback func(line string)) ExecBuilder {
	b.stderrCallback = callback
	return b
}

// WarnLogLines logs the last N lines of stderr as warnings if the command fails.
func (b ExecBuilder) WarnLogLines(lines int) ExecBuilder {
	b.warnLogLines = lines
	return b
}

// ErrorStderrLines includes the last N lines of stderr in the returned error if the command fails.
func (b ExecBuilder) ErrorStderrLines(lines int) ExecBuilder {
	b.errorStderrLines = lines
	return b
}

func (b ExecBuilder) Execute() error {
	_, _, err := b.execute(false)
	return err
}

// ExecuteCaptureOuput runs the command and returns its full stdout and stderr.
func (b ExecBuilder) ExecuteCaptureOuput() (string, string, error) {
	return b.execute(true)
}

func (b ExecBuilder) execute(capture bool) (string, string, error) {
	logger.Log.Debugf("Executing: %s %v", b.command, b.args)

	cmd := exec.CommandContext(b.ctx, b.command, b.args...)
	cmd.Dir = b.workingDirectory
	if b.environment != nil {
		cmd.Env = b.environment
	}

	if b.stdin != nil {
		cmd.Stdin = strings.NewReader(*b.stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to open stdout pipe (%s):\n%w", b.command, err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to open stderr pipe (%s):\n%w", b.command, err)
	}

	err = cmd.Start()
	if err != nil {
		return "", "", fmt.Errorf("failed to start (%s):\n%w", b.command, err)
	}

	stdoutCollector := newLineCollector(capture, 0)
	stderrCollector := newLineCollector(capture, max(b.warnLogLines, b.errorStderrLines))

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdoutPipe, b.stdoutLogLevel, b.stdoutCallback, stdoutCollector)
	}()
	go func() {
		defer wg.Done()
		readLines(stderrPipe, b.stderrLogLevel, b.stderrCallback, stderrCollector)
	}()
	wg.Wait()

	err = cmd.Wait()
	if err != nil {
		tail := stderrCollector.tail(b.warnLogLines)
		for _, line := range tail {
			logger.Log.Warn(line)
		}

		errorLines := stderrCollector.tail(b.errorStderrLines)
		if len(errorLines) > 0 {
			err = fmt.Errorf("%w:\n%s", err, strings.Join(errorLines, "\n"))
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("(%s) exited with code (%d):\n%w", b.command, exitErr.ExitCode(), err)
		}

		return stdoutCollector.String(), stderrCollector.String(), err
	}

	return stdoutCollector.String(), stderrCollector.String(), nil
}

func readLines(reader io.Reader, level logrus.Level, callback func(string), collector *lineCollector) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if level != LogDisabledLevel {
			logger.Log.Log(level, line)
		}

		if callback != nil {
			callback(line)
		}

		collector.add(line)
	}
}

type lineCollector struct {
	capture  bool
	builder  strings.Builder
	keep     int
	lastRing []string
}

func newLineCollector(capture bool, keep int) *lineCollector {
	return &lineCollector{
		capture: capture,
		keep:    keep,
	}
}

func (c *lineCollector) add(line string) {
	if c.capture {
		c.builder.WriteString(line)
		c.builder.WriteString("\n")
	}

	if c.keep > 0 {
		c.lastRing = append(c.lastRing, line)
		if len(c.lastRing) > c.keep {
			c.lastRing = c.lastRing[len(c.lastRing)-c.keep:]
		}
	}
}

func (c *lineCollector) tail(lines int) []string {
	if lines <= 0 {
		return nil
	}

	if len(c.lastRing) <= lines {
		return c.lastRing
	}
	return c.lastRing[len(c.lastRing)-lines:]
}

func (c *lineCollector) String() string {
	return c.builder.String()
}

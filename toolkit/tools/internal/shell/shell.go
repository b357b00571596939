// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Helpers for running external tools with their output routed through the logger.

package shell

import (
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Execute runs a command and returns its stdout and stderr. Output is only logged at trace level.
func Execute(program string, args ...string) (stdout string, stderr string, err error) {
	return NewExecBuilder(program, args...).
		LogLevel(logrus.TraceLevel, logrus.TraceLevel).
		ExecuteCaptureOuput()
}

// ExecuteWithStdin runs a command with the given stdin and returns its stdout and stderr.
func ExecuteWithStdin(input string, program string, args ...string) (stdout string, stderr string, err error) {
	return NewExecBuilder(program, args...).
		Stdin(input).
		LogLevel(logrus.TraceLevel, logrus.TraceLevel).
		ExecuteCaptureOuput()
}

// ExecuteLive runs a command, logging stdout at debug level. When squashErrors is set, stderr is also logged at
// debug level instead of warning level.
func ExecuteLive(squashErrors bool, program string, args ...string) error {
	stderrLevel := logrus.WarnLevel
	if squashErrors {
		stderrLevel = logrus.DebugLevel
	}

	return NewExecBuilder(program, args...).
		LogLevel(logrus.DebugLevel, stderrLevel).
		Execute()
}

// ExecuteLiveWithErr runs a command, logging its output at debug level, and includes the last stderrLines lines of
// stderr in the returned error.
func ExecuteLiveWithErr(stderrLines int, program string, args ...string) error {
	return NewExecBuilder(program, args...).
		LogLevel(logrus.DebugLevel, logrus.DebugLevel).
		ErrorStderrLines(stderrLines).
		Execute()
}

// CommandLine formats a command and its arguments for log messages.
func CommandLine(program string, args ...string) string {
	return strings.Join(append([]string{program}, args...), " ")
}

// LookPath reports the resolved path of a program, or an empty string if it is not installed.
func LookPath(program string) string {
	path, err := exec.LookPath(program)
	if err != nil {
		return ""
	}
	return path
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package processes

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/logger"
	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/shell"
	"github.com/sirupsen/logrus"
)

var (
	// Example:
	//     revision: 4.93.2
	lsofVersionRegexp = regexp.MustCompile(`(?m)^\s*revision:\s+(\d+)\.(\d+)\.\d+\s*$`)
)

type ProcessRecord struct {
	ProcessId   int
	ProcessName string
	ProcessRoot string
	// Last open file reported for the process.
	FileName string
}

// GetProcessesUsingPath returns a list of all the processes that have a file opened under the provided path.
func GetProcessesUsingPath(path string) ([]ProcessRecord, error) {
	lsofVersionMajor, lsofVersionMinor, err := getLsofVersion()
	if err != nil {
		return nil, err
	}

	qArgAvailable := lsofVersionMajor > 4 || (lsofVersionMajor == 4 && lsofVersionMinor >= 95)

	args := []string(nil)
	if qArgAvailable {
		args = append(args, "-Q")
	}

	args = append(args, "-F", "pcn", "--", path)

	stdout, _, err := shell.NewExecBuilder("lsof", args...).
		LogLevel(logrus.TraceLevel, logrus.DebugLevel).
		ExecuteCaptureOuput()
	if err != nil {
		if !qArgAvailable {
			// The -Q arg isn't available. So, this error could just mean there are no results.
			// So, just hope that this is in fact the case, to avoid unexpected errors.
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list running processes using path (%s) using lsof\n%w", path,
			err)
	}

	return parseLsofOutput(stdout)
}

// parseLsofOutput parses the "-F pcn" field output of lsof.
func parseLsofOutput(stdout string) ([]ProcessRecord, error) {
	var err error

	records := []ProcessRecord(nil)
	record := ProcessRecord{
		ProcessId: -1,
	}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) <= 0 {
			continue
		}

		prefix := line[0]
		value := line[1:]
		switch prefix {
		case 'p':
			if record.ProcessId >= 0 {
				// Add previous item.
				records = append(records, record)
			}

			record = ProcessRecord{}

			record.ProcessId, err = strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse process ID string (%s):\n%w", value, err)
			}

			// The process may have exited since lsof ran.
			record.ProcessRoot, _ = os.Readlink(fmt.Sprintf("/proc/%d/root", record.ProcessId))

		case 'c':
			record.ProcessName = value

		case 'n':
			record.FileName = value
		}
	}

	if record.ProcessId >= 0 {
		// Add last item.
		records = append(records, record)
	}

	return records, nil
}

func getLsofVersion() (int, int, error) {
	_, stderr, err := shell.NewExecBuilder("lsof", "-v").
		LogLevel(logrus.TraceLevel, logrus.TraceLevel).
		ExecuteCaptureOuput()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get lsof's version:\n%w", err)
	}

	match := lsofVersionRegexp.FindStringSubmatch(stderr)
	if match == nil {
		return 0, 0, fmt.Errorf("failed to parse lsof version string")
	}

	majorStr := match[1]
	minorStr := match[2]

	major, _ := strconv.Atoi(majorStr)
	minor, _ := strconv.Atoi(minorStr)

	return major, minor, nil
}

// LogProcessesUsingPath logs the processes holding files open under path. Used to explain why an unmount or a
// loop device detach reported busy.
func LogProcessesUsingPath(path string) {
	records, err := GetProcessesUsingPath(path)
	if err != nil {
		logger.Log.Warnf("Failed to list processes using (%s):\n%v", path, err)
		return
	}

	if len(records) == 0 {
		logger.Log.Warnf("No processes found using (%s)", path)
		return
	}

	logger.Log.Warnf("Processes using (%s):\n%s", path, FormatProcessRecords(records))
}

// FormatProcessRecords renders one line per process.
func FormatProcessRecords(records []ProcessRecord) string {
	builder := strings.Builder{}
	for i, record := range records {
		if i != 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("pid=%d name=%s root=%s file=%s", record.ProcessId, record.ProcessName,
			record.ProcessRoot, record.FileName))
	}
	return builder.String()
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const (
	ColorFlag         = "log-color"
	ColorFlagHelp     = "Color setting for log terminal output"
	ColorsPlaceholder = "(always|auto|never)"

	FileFlag     = "log-file"
	FileFlagHelp = "Path to the log file"

	LevelsFlag        = "log-level"
	LevelsHelp        = "The minimum log level"
	LevelsPlaceholder = "(panic|fatal|error|warn|info|debug|trace)"

	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"

	defaultLogLevel  = logrus.InfoLevel
	defaultFileLevel = logrus.DebugLevel
	logFileMode      = 0o664
)

var (
	// Log is the shared logger for all packages.
	Log *logrus.Logger

	stderrHook *writerHook
)

// LogFlags holds the command line values that configure logging.
type LogFlags struct {
	LogColor *string
	LogFile  *string
	LogLevel *string
}

func init() {
	Log = logrus.New()
	Log.SetOutput(io.Discard)
	Log.SetLevel(logrus.TraceLevel)
}

// Colors returns the accepted values for the color flag.
func Colors() []string {
	return []string{ColorAlways, ColorAuto, ColorNever}
}

// Levels returns the accepted values for the level flag.
func Levels() []string {
	levels := []string(nil)
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}

// InitStderrLog sets up logging to stderr only.
func InitStderrLog() {
	initStderrHook(defaultLogLevel, ColorAuto)
}

// InitBestEffort sets up logging from command line flags. A log file that cannot be opened is reported and
// otherwise ignored.
func InitBestEffort(lf *LogFlags) {
	level := defaultLogLevel
	colorMode := ColorAuto
	logFile := ""

	if lf != nil {
		if lf.LogLevel != nil && *lf.LogLevel != "" {
			parsedLevel, err := logrus.ParseLevel(*lf.LogLevel)
			if err == nil {
				level = parsedLevel
			}
		}

		if lf.LogColor != nil && *lf.LogColor != "" {
			colorMode = *lf.LogColor
		}

		if lf.LogFile != nil {
			logFile = *lf.LogFile
		}
	}

	initStderrHook(level, colorMode)

	if logFile != "" {
		err := addFileHook(logFile, max(level, defaultFileLevel))
		if err != nil {
			Log.Warnf("Failed to open log file (%s):\n%v", logFile, err)
		}
	}
}

// SetStderrLogLevel changes the minimum level written to stderr.
func SetStderrLogLevel(level string) error {
	parsedLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level (%s):\n%w", level, err)
	}

	if stderrHook != nil {
		stderrHook.level = parsedLevel
	}
	return nil
}

func initStderrHook(level logrus.Level, colorMode string) {
	if stderrHook != nil {
		stderrHook.level = level
		return
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}

	stderrHook = &writerHook{
		writer:    os.Stderr,
		level:     level,
		formatter: &levelFormatter{colored: !color.NoColor},
	}
	Log.AddHook(stderrHook)
}

func addFileHook(path string, level logrus.Level) error {
	err := os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		return err
	}

	Log.AddHook(&writerHook{
		writer: file,
		level:  level,
		formatter: &logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			DisableQuote:     true,
			QuoteEmptyFields: true,
		},
	})
	return nil
}

type writerHook struct {
	writer    io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	if entry.Level > h.level {
		return nil
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	_, err = h.writer.Write(line)
	return err
}

type levelFormatter struct {
	colored bool
}

func (f *levelFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	levelName := strings.ToUpper(entry.Level.String())
	if len(levelName) > 4 {
		levelName = levelName[:4]
	}

	if f.colored {
		levelName = levelColor(entry.Level).Sprint(levelName)
	}

	timestamp := entry.Time.Format("15:04:05")
	return []byte(fmt.Sprintf("%s %s %s\n", timestamp, levelName, entry.Message)), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.InfoLevel:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

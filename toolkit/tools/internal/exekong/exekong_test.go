// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package exekong

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCli struct {
	LogFlags
	Version kong.VersionFlag `name:"version" help:"Print version and exit"`
}

func TestLogFlagsParse(t *testing.T) {
	cli := &testCli{}
	parser, err := kong.New(cli, KongVars)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--log-level", "debug", "--log-color", "never", "--log-file", "/tmp/x.log"})
	require.NoError(t, err)

	flags := cli.AsLoggerFlags()
	assert.Equal(t, "debug", *flags.LogLevel)
	assert.Equal(t, "never", *flags.LogColor)
	assert.Equal(t, "/tmp/x.log", *flags.LogFile)
}

func TestLogFlagsRejectsUnknownLevel(t *testing.T) {
	parser, err := kong.New(&testCli{}, KongVars)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--log-level", "verbose"})
	assert.Error(t, err)
}

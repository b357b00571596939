// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package envfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvOsRelease(t *testing.T) {
	content := `# comment
NAME="Azure Linux"
VERSION="3.0.20240824"
ID=azurelinux
PRETTY_NAME='Microsoft Azure Linux 3.0'
HOME_URL="https://aka.ms/azurelinux"
EMPTY=
ESCAPED=a\ b
`
	env, err := ParseEnv(content)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{
		"NAME":        "Azure Linux",
		"VERSION":     "3.0.20240824",
		"ID":          "azurelinux",
		"PRETTY_NAME": "Microsoft Azure Linux 3.0",
		"HOME_URL":    "https://aka.ms/azurelinux",
		"EMPTY":       "",
		"ESCAPED":     "a b",
	}, env)
}

func TestParseEnvDoubleQuoteEscapes(t *testing.T) {
	env, err := ParseEnv(`A="say \"hi\" \\ \$HOME"`)
	assert.NoError(t, err)
	assert.Equal(t, `say "hi" \ $HOME`, env["A"])
}

func TestParseEnvErrors(t *testing.T) {
	_, err := ParseEnv("echo hello")
	assert.ErrorContains(t, err, "not a variable assignment (1)")

	_, err = ParseEnv("\nA=b c")
	assert.ErrorContains(t, err, "invalid value (2)")
	assert.ErrorContains(t, err, "multiple words")

	_, err = ParseEnv(`A="unterminated`)
	assert.ErrorContains(t, err, "unterminated double quote")

	_, err = ParseEnv(`A='unterminated`)
	assert.ErrorContains(t, err, "unterminated single quote")

	_, err = ParseEnv(`A=$B`)
	assert.ErrorContains(t, err, "variable expansion")
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Used to parse config files formatted like a shell script containing only variable assignments
// (e.g. /etc/os-release).

package envfile

import (
	"fmt"
	"strings"

	"github.com/microsoft/azure-linux-disk-assembler/toolkit/tools/internal/file"
)

func ParseEnvFile(path string) (map[string]string, error) {
	content, err := file.Read(path)
	if err != nil {
		return nil, err
	}

	return ParseEnv(content)
}

func ParseEnv(content string) (map[string]string, error) {
	result := make(map[string]string)

	for i, line := range strings.Split(content, "\n") {
		lineNum := i + 1

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, rawValue, found := strings.Cut(line, "=")
		if !found || name == "" || strings.ContainsAny(name, " \t\"'$\\") {
			return nil, fmt.Errorf("env file line is not a variable assignment (%d)", lineNum)
		}

		value, err := parseValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("env file line has an invalid value (%d):\n%w", lineNum, err)
		}

		result[name] = value
	}

	return result, nil
}

func parseValue(raw string) (string, error) {
	builder := strings.Builder{}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '\'':
			end := strings.IndexByte(raw[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("unterminated single quote")
			}
			builder.WriteString(raw[i+1 : i+1+end])
			i += end + 1

		case '"':
			i++
			for ; i < len(raw) && raw[i] != '"'; i++ {
				if raw[i] == '\\' && i+1 < len(raw) && strings.IndexByte("\"\\$`", raw[i+1]) >= 0 {
					i++
				} else if raw[i] == '$' || raw[i] == '`' {
					return "", fmt.Errorf("variable expansion is not supported")
				}
				builder.WriteByte(raw[i])
			}
			if i >= len(raw) {
				return "", fmt.Errorf("unterminated double quote")
			}

		case '\\':
			if i+1 >= len(raw) {
				return "", fmt.Errorf("trailing escape character")
			}
			i++
			builder.WriteByte(raw[i])

		case ' ', '\t':
			return "", fmt.Errorf("value has multiple words")

		case '$', '`':
			return "", fmt.Errorf("variable expansion is not supported")

		default:
			builder.WriteByte(c)
		}
	}

	return builder.String(), nil
}

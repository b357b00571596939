// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionRegex = regexp.MustCompile(`\d+(\.\d+)*`)

type Version []int

func (v Version) Cmp(other Version) int {
	count := len(v)
	if len(other) > count {
		count = len(other)
	}

	for i := 0; i < count; i++ {
		c1 := 0
		if i < len(v) {
			c1 = v[i]
		}

		c2 := 0
		if i < len(other) {
			c2 = other[i]
		}

		if c1 > c2 {
			return 1
		} else if c1 < c2 {
			return -1
		}
	}

	return 0
}

func (v Version) Gt(other Version) bool {
	return v.Cmp(other) > 0
}

func (v Version) Ge(other Version) bool {
	return v.Cmp(other) >= 0
}

func (v Version) Lt(other Version) bool {
	return v.Cmp(other) < 0
}

func (v Version) Le(other Version) bool {
	return v.Cmp(other) <= 0
}

func (v Version) Eq(other Version) bool {
	return v.Cmp(other) == 0
}

func (v Version) String() string {
	builder := strings.Builder{}
	for i, p := range v {
		if i != 0 {
			builder.WriteString(".")
		}
		builder.WriteString(fmt.Sprintf("%d", p))
	}
	return builder.String()
}

// Parse reads a dotted version number (e.g. "2.39.3").
func Parse(value string) (Version, error) {
	parts := strings.Split(value, ".")
	result := make(Version, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version (%s)", value)
		}
		result = append(result, n)
	}
	return result, nil
}

// ParseFromOutput finds the first dotted version number in a tool's '--version' output
// (e.g. "sfdisk from util-linux 2.39.3").
func ParseFromOutput(output string) (Version, error) {
	match := versionRegex.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("no version number found in (%s)", strings.TrimSpace(output))
	}
	return Parse(match)
}

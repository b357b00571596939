// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionGt(t *testing.T) {
	assert.True(t, Version{2}.Gt(Version{1}))
	assert.True(t, Version{2}.Gt(Version{1, 0}))
	assert.True(t, Version{2}.Gt(Version{1, 1}))
	assert.True(t, Version{2, 0}.Gt(Version{1}))
	assert.True(t, Version{2, 1}.Gt(Version{1}))
}

func TestVersionGe(t *testing.T) {
	assert.True(t, Version{2}.Ge(Version{1}))
	assert.True(t, Version{2}.Ge(Version{2}))
}

func TestVersionLt(t *testing.T) {
	assert.True(t, Version{1}.Lt(Version{2}))
}

func TestVersionLe(t *testing.T) {
	assert.True(t, Version{1}.Le(Version{2}))
	assert.True(t, Version{1}.Le(Version{1}))
}

func TestVersionEq(t *testing.T) {
	assert.True(t, Version{1}.Eq(Version{1}))
	assert.True(t, Version{1}.Eq(Version{1, 0}))
	assert.True(t, Version{1, 0}.Eq(Version{1}))
	assert.True(t, Version{1, 0}.Eq(Version{1, 0}))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "", Version{}.String())
	assert.Equal(t, "1", Version{1}.String())
	assert.Equal(t, "1.2", Version{1, 2}.String())
	assert.Equal(t, "1.2.3", Version{1, 2, 3}.String())
}

func TestParse(t *testing.T) {
	v, err := Parse("2.39.3")
	assert.NoError(t, err)
	assert.Equal(t, Version{2, 39, 3}, v)

	_, err = Parse("2.x")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestParseFromOutput(t *testing.T) {
	v, err := ParseFromOutput("sfdisk from util-linux 2.39.3\n")
	assert.NoError(t, err)
	assert.Equal(t, Version{2, 39, 3}, v)

	v, err = ParseFromOutput("qemu-img version 8.2.0 (qemu-8.2.0-1.fc40)\nCopyright (c) 2003-2023")
	assert.NoError(t, err)
	assert.True(t, v.Ge(Version{8}))

	_, err = ParseFromOutput("no digits here")
	assert.Error(t, err)
}

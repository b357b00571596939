// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContent = "Checksum\nThis file\nConsistently."

func TestComputeKnownDigests(t *testing.T) {
	testCases := []struct {
		algorithm Algorithm
		expected  string
	}{
		{AlgorithmMd5, "md5:37eda131b189bede2816cc72dabf0252"},
		{AlgorithmSha1, "sha1:6017eb45d9a006906ff81b7eb7d98ecdc92e1b20"},
		{AlgorithmSha256, "sha256:e72fa48e1718534259f05303de0b28184718d229675ffa6314bb481991a90faa"},
		{
			AlgorithmSha384,
			"sha384:35e3dcc878856d7f0bd12eb46781081682dd5a9da2af749dcfb3ff5d12c8fa323cd34a3d55c24b6d7cba4ae9a7203fb4",
		},
		{
			AlgorithmSha512,
			"sha512:5d362859cea5393e3655eb93c743580cf6b466afaec8016bcd3fbaae07253e524135859292dce967d9d13bd5e3c24f1d0" +
				"95a9f5a3f4bc9ea923325d4fd688c64",
		},
	}

	for _, testCase := range testCases {
		t.Run(string(testCase.algorithm), func(t *testing.T) {
			actual, err := Compute(strings.NewReader(testContent), testCase.algorithm)
			assert.NoError(t, err)
			assert.Equal(t, testCase.expected, actual.String())
		})
	}
}

func TestComputeUnsupportedAlgorithm(t *testing.T) {
	_, err := Compute(strings.NewReader(testContent), "crc32")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestParse(t *testing.T) {
	checksum, err := Parse("SHA1:6017EB45D9A006906FF81B7EB7D98ECDC92E1B20")
	assert.NoError(t, err)
	assert.Equal(t, Checksum{Algorithm: AlgorithmSha1, Hex: "6017eb45d9a006906ff81b7eb7d98ecdc92e1b20"}, checksum)

	_, err = Parse("6017eb45d9a006906ff81b7eb7d98ecdc92e1b20")
	assert.ErrorIs(t, err, ErrMalformedChecksum)

	_, err = Parse("sha256:abcd")
	assert.ErrorIs(t, err, ErrMalformedChecksum)

	_, err = Parse("whirlpool:abcd")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checksum.txt")
	require.NoError(t, os.WriteFile(path, []byte(testContent), 0o644))

	err := VerifyFile(path, "md5:37eda131b189bede2816cc72dabf0252")
	assert.NoError(t, err)

	err = VerifyFile(path, "md5:00000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrMismatch)

	sha512, err := ComputeFile(path, AlgorithmSha512)
	require.NoError(t, err)
	assert.Len(t, sha512.Hex, 128)
	assert.NoError(t, VerifyFile(path, sha512.String()))
}

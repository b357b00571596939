// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// File digests in "<algorithm>:<hex>" form.

package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"slices"
	"strings"
)

type Algorithm string

const (
	AlgorithmMd5    Algorithm = "md5"
	AlgorithmSha1   Algorithm = "sha1"
	AlgorithmSha256 Algorithm = "sha256"
	AlgorithmSha384 Algorithm = "sha384"
	AlgorithmSha512 Algorithm = "sha512"

	DefaultAlgorithm = AlgorithmSha256
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
	ErrMalformedChecksum    = errors.New("malformed checksum")
	ErrMismatch             = errors.New("checksum mismatch")
)

var algorithms = []Algorithm{
	AlgorithmMd5,
	AlgorithmSha1,
	AlgorithmSha256,
	AlgorithmSha384,
	AlgorithmSha512,
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for _, algorithm := range algorithms {
		names = append(names, string(algorithm))
	}
	return names
}

func (a Algorithm) IsValid() error {
	if !slices.Contains(algorithms, a) {
		return fmt.Errorf("%w (%s)", ErrUnsupportedAlgorithm, a)
	}
	return nil
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case AlgorithmMd5:
		return md5.New()
	case AlgorithmSha1:
		return sha1.New()
	case AlgorithmSha384:
		return sha512.New384()
	case AlgorithmSha512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// Checksum is a digest tagged with the algorithm that produced it.
type Checksum struct {
	Algorithm Algorithm
	Hex       string
}

func (c Checksum) String() string {
	return fmt.Sprintf("%s:%s", c.Algorithm, c.Hex)
}

// Parse reads "<algorithm>:<hex>".
func Parse(value string) (Checksum, error) {
	algorithm, digest, found := strings.Cut(value, ":")
	if !found || digest == "" {
		return Checksum{}, fmt.Errorf("%w (%s): expected '<algorithm>:<hex>'", ErrMalformedChecksum, value)
	}

	checksum := Checksum{
		Algorithm: Algorithm(strings.ToLower(algorithm)),
		Hex:       strings.ToLower(digest),
	}

	err := checksum.Algorithm.IsValid()
	if err != nil {
		return Checksum{}, err
	}

	expectedLength := checksum.Algorithm.newHash().Size() * 2
	if len(checksum.Hex) != expectedLength {
		return Checksum{}, fmt.Errorf("%w (%s): %s digest must be %d hex characters", ErrMalformedChecksum, value,
			checksum.Algorithm, expectedLength)
	}

	return checksum, nil
}

func Compute(reader io.Reader, algorithm Algorithm) (Checksum, error) {
	err := algorithm.IsValid()
	if err != nil {
		return Checksum{}, err
	}

	h := algorithm.newHash()
	_, err = io.Copy(h, reader)
	if err != nil {
		return Checksum{}, fmt.Errorf("failed to read data for checksum:\n%w", err)
	}

	return Checksum{
		Algorithm: algorithm,
		Hex:       fmt.Sprintf("%x", h.Sum(nil)),
	}, nil
}

func ComputeFile(path string, algorithm Algorithm) (Checksum, error) {
	file, err := os.Open(path)
	if err != nil {
		return Checksum{}, fmt.Errorf("failed to open file (%s) for checksum:\n%w", path, err)
	}
	defer file.Close()

	return Compute(file, algorithm)
}

// VerifyFile checks path against an expected "<algorithm>:<hex>" value.
func VerifyFile(path string, expected string) error {
	expectedChecksum, err := Parse(expected)
	if err != nil {
		return err
	}

	actual, err := ComputeFile(path, expectedChecksum.Algorithm)
	if err != nil {
		return err
	}

	if actual.Hex != expectedChecksum.Hex {
		return fmt.Errorf("%w (file='%s'): expected (%s), got (%s)", ErrMismatch, path, expectedChecksum, actual)
	}

	return nil
}

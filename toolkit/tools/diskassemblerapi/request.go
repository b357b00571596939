// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"fmt"
	"os"
	"path/filepath"
)

// Request is one assembler invocation: the source tree, where to put the image and what image to build.
type Request struct {
	Tree      string    `yaml:"tree" json:"tree" jsonschema:"required"`
	OutputDir string    `yaml:"output_dir" json:"output_dir" jsonschema:"required"`
	Options   ImageSpec `yaml:"options" json:"options" jsonschema:"required"`
}

// IsValid validates the image options first, so that option errors are reported before any path is touched.
func (r *Request) IsValid() error {
	err := r.Options.IsValid()
	if err != nil {
		return fmt.Errorf("invalid 'options' field:\n%w", err)
	}

	if r.Tree == "" {
		return fmt.Errorf("invalid 'tree' field: value is empty")
	}

	info, err := os.Stat(r.Tree)
	if err != nil {
		return fmt.Errorf("invalid 'tree' field (%s):\n%w", r.Tree, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid 'tree' field (%s): not a directory", r.Tree)
	}

	if r.OutputDir == "" {
		return fmt.Errorf("invalid 'output_dir' field: value is empty")
	}

	return nil
}

// ResolvePaths makes relative 'tree' and 'output_dir' values relative to baseDir.
func (r *Request) ResolvePaths(baseDir string) {
	if r.Tree != "" && !filepath.IsAbs(r.Tree) {
		r.Tree = filepath.Join(baseDir, r.Tree)
	}
	if r.OutputDir != "" && !filepath.IsAbs(r.OutputDir) {
		r.OutputDir = filepath.Join(baseDir, r.OutputDir)
	}
}

// OutputPath is where the final image is written.
func (r *Request) OutputPath() string {
	return filepath.Join(r.OutputDir, r.Options.Filename)
}

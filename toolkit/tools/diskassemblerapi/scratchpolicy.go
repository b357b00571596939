// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerapi

import (
	"fmt"
	"slices"
)

// ScratchPolicy decides when the per-invocation workspace is removed.
type ScratchPolicy string

const (
	ScratchPolicyDefault   ScratchPolicy = ""
	ScratchPolicyAlways    ScratchPolicy = "always"
	ScratchPolicyOnSuccess ScratchPolicy = "on-success"
	ScratchPolicyNever     ScratchPolicy = "never"
)

var supportedScratchPolicies = []string{
	string(ScratchPolicyAlways),
	string(ScratchPolicyOnSuccess),
	string(ScratchPolicyNever),
}

func SupportedScratchPolicies() []string {
	return supportedScratchPolicies
}

func (p ScratchPolicy) IsValid() error {
	if p != ScratchPolicyDefault && !slices.Contains(supportedScratchPolicies, string(p)) {
		return fmt.Errorf("invalid scratch policy (%s)", p)
	}
	return nil
}

// ShouldRemove reports whether the workspace is removed once the invocation ends with the given outcome.
func (p ScratchPolicy) ShouldRemove(succeeded bool) bool {
	switch p {
	case ScratchPolicyNever:
		return false

	case ScratchPolicyOnSuccess:
		return succeeded

	default:
		return true
	}
}

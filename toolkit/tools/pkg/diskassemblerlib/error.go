// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskassemblerlib

// AssemblerError is a named error category. The name has the form "Category:Name".
type AssemblerError struct {
	name    string
	message string
}

func NewAssemblerError(name string, message string) *AssemblerError {
	return &AssemblerError{
		name:    name,
		message: message,
	}
}

func (e *AssemblerError) Name() string {
	return e.name
}

func (e *AssemblerError) Error() string {
	return e.message
}

// GetAllAssemblerErrors returns every AssemblerError in the error tree, outermost first.
func GetAllAssemblerErrors(err error) []*AssemblerError {
	result := []*AssemblerError(nil)

	pending := []error{err}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		if current == nil {
			continue
		}

		if assemblerError, ok := current.(*AssemblerError); ok {
			result = append(result, assemblerError)
		}

		switch unwrapper := current.(type) {
		case interface{ Unwrap() error }:
			pending = append(pending, unwrapper.Unwrap())

		case interface{ Unwrap() []error }:
			pending = append(pending, unwrapper.Unwrap()...)
		}
	}

	return result
}

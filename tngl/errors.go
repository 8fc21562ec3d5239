package tngl

import (
	"errors"
	"fmt"
)

var (
	ErrNakedNumber     = errors.New("numeric literal without a unit")
	ErrInvalidLiteral  = errors.New("malformed literal")
	ErrProgramTooLarge = errors.New("compiled program exceeds maximum size")
)

// CompileError locates a fatal compilation error in the source.
type CompileError struct {
	Line   int
	Column int
	Lexeme string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("tngl:%d:%d: %v: %q", e.Line, e.Column, e.Err, e.Lexeme)
}

func (e *CompileError) Unwrap() error { return e.Err }

package expr

import "errors"

var (
	// ErrParse covers both lexing and grammar errors.
	ErrParse = errors.New("expression parse error")
	// ErrSecurity is raised by checkSecurity and by any runtime attempt
	// at class/type lookup.
	ErrSecurity = errors.New("expression security violation")
	// ErrRuntime covers type errors encountered during evaluation (e.g.
	// arithmetic on a non-numeric operand).
	ErrRuntime = errors.New("expression runtime error")
)

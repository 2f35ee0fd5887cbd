package compiler

import "fmt"

// Code identifies a structural problem with a program.
type Code string

const (
	CodeEmptyProgram       Code = "EmptyProgram"
	CodeMissingLaunch      Code = "MissingLaunch"
	CodeDisconnectedBlocks Code = "DisconnectedBlocks"
	CodeMissingLand        Code = "MissingLand"
	CodeUnknownBlock       Code = "UnknownBlock"
	CodeInvalidField       Code = "InvalidField"
	CodeMisplacedSentinel  Code = "MisplacedSentinel"
	CodeLoopTooDeep        Code = "LoopTooDeep"
	CodeProgramTooLong     Code = "ProgramTooLong"
)

// StructuralError rejects a program before anything is generated or
// simulated. Path locates the offending block, e.g. "3/body/0".
type StructuralError struct {
	Code   Code
	Path   string
	Detail string
}

func (e *StructuralError) Error() string {
	msg := string(e.Code)
	if e.Path != "" {
		msg += " at block " + e.Path
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any StructuralError with the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *StructuralError) Is(target error) bool {
	t, ok := target.(*StructuralError)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyProgram       = &StructuralError{Code: CodeEmptyProgram}
	ErrMissingLaunch      = &StructuralError{Code: CodeMissingLaunch}
	ErrDisconnectedBlocks = &StructuralError{Code: CodeDisconnectedBlocks}
	ErrMissingLand        = &StructuralError{Code: CodeMissingLand}
	ErrUnknownBlock       = &StructuralError{Code: CodeUnknownBlock}
	ErrInvalidField       = &StructuralError{Code: CodeInvalidField}
	ErrMisplacedSentinel  = &StructuralError{Code: CodeMisplacedSentinel}
	ErrLoopTooDeep        = &StructuralError{Code: CodeLoopTooDeep}
	ErrProgramTooLong     = &StructuralError{Code: CodeProgramTooLong}
)

func structural(code Code, path, format string, args ...any) *StructuralError {
	return &StructuralError{Code: code, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// WarningCode identifies a non-fatal finding.
type WarningCode string

const (
	// EmptySequenceWarning means nothing runs between launch and land.
	EmptySequenceWarning WarningCode = "EmptySequence"
	// EmptyLoopWarning means a repeat block has no body and was dropped.
	EmptyLoopWarning WarningCode = "EmptyLoop"
)

// Warning is reported alongside a successfully compiled program.
type Warning struct {
	Code    WarningCode `json:"code"`
	Path    string      `json:"path,omitempty"`
	Message string      `json:"message"`
}

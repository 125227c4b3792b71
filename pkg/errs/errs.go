// Package errs holds the two fatal error kinds of a run.
//
// A DataError means the price history cannot be used (malformed, duplicated,
// gapped or too short). A ParameterError means the run configuration is
// invalid. Both abort a run before or during loading; blow-ups and
// infeasible searches are results, not errors, and never use these types.
package errs

import (
	"errors"
	"fmt"
)

type DataError struct {
	Op   string // load, discover, split, fetch
	Path string
	Err  error
}

func (e *DataError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("data %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("data %s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Data builds a DataError with a formatted cause.
func Data(op, path, format string, args ...any) error {
	return &DataError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

type ParameterError struct {
	Field string
	Msg   string
}

func (e *ParameterError) Error() string {
	if e.Field == "" {
		return "invalid parameter: " + e.Msg
	}
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Msg)
}

// Param builds a ParameterError for field.
func Param(field, format string, args ...any) error {
	return &ParameterError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func IsData(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

func IsParameter(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

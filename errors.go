package yquery

import (
	"fmt"
	"strings"
)

// ValidationError reports a value that does not satisfy a schema node.
// Field is a dotted path into the row ("" for the row itself).
type ValidationError struct {
	Table string
	Key   string
	Field string
	Msg   string
	Err   error
}

func validationErrf(field string, err error, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Error() string {
	var buf strings.Builder
	if e.Table != "" {
		buf.WriteString(e.Table)
		if e.Key != "" {
			buf.WriteByte('/')
			buf.WriteString(e.Key)
		}
	}
	if e.Field != "" {
		if buf.Len() > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(e.Field)
	}
	if buf.Len() > 0 {
		buf.WriteString(": ")
	}
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// inTable stamps table/key context onto validation errors bubbling out of
// schema checks.
func inTable(err error, table, key string) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*ValidationError); ok {
		ve.Table = table
		ve.Key = key
	}
	return err
}

func subField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

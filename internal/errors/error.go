package errors

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryWidget  Category = "widget"
	CategoryConfig  Category = "config"
	CategoryUpload  Category = "upload"
	CategoryStorage Category = "storage"
	CategoryCLI     Category = "cli"
)

// Location represents a position in a source or configuration file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// DragonError is a structured error with a code, location, and suggestions.
type DragonError struct {
	// Code is a unique error identifier (e.g., "D001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains surrounding lines of the file.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DragonError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DragonError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a DragonError with the same code.
func (e *DragonError) Is(target error) bool {
	t, ok := target.(*DragonError)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithLocation adds a file location to the error.
func (e *DragonError) WithLocation(file string, line, column int) *DragonError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithOffset adds a file location given a byte offset into the file, as
// reported by encoding/json syntax errors.
func (e *DragonError) WithOffset(file string, offset int64) *DragonError {
	data, err := os.ReadFile(file)
	if err != nil || offset <= 0 {
		return e
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line := bytes.Count(before, []byte("\n")) + 1
	column := int(offset)
	if i := bytes.LastIndexByte(before, '\n'); i >= 0 {
		column = int(offset) - i - 1
	}
	return e.WithLocation(file, line, column)
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DragonError) WithSuggestion(s string) *DragonError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *DragonError) WithDetail(d string) *DragonError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DragonError) Wrap(err error) *DragonError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a DragonError from a registered error code.
func New(code string) *DragonError {
	template, ok := registry[code]
	if !ok {
		return &DragonError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DragonError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new DragonError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DragonError {
	return &DragonError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DragonError.
func FromError(err error, code string) *DragonError {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DragonError); ok {
		return de
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err is, or wraps, a DragonError with code.
func HasCode(err error, code string) bool {
	for err != nil {
		if de, ok := err.(*DragonError); ok && de.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Statement failed: parse, translation or execution error
	ExitCommandError = 2 // Command error (bad flags, unreadable files, backend unreachable)
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON and YAML envelope of every command.
type Response struct {
	Status string `json:"status" yaml:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty" yaml:"data,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Output writes command results in the selected format.
type Output struct {
	Format string
	Writer io.Writer
}

// Success writes data. Text output prints strings as is, rows one per line
// with sorted keys, and anything else as indented JSON.
func (o *Output) Success(data any) error {
	switch o.Format {
	case "json":
		return o.writeJSON(Response{Status: "ok", Data: data})
	case "yaml":
		return o.writeYAML(Response{Status: "ok", Data: data})
	}
	switch d := data.(type) {
	case string:
		_, err := fmt.Fprintln(o.Writer, d)
		return err
	case []map[string]any:
		for _, row := range d {
			if _, err := fmt.Fprintln(o.Writer, formatRow(row)); err != nil {
				return err
			}
		}
		return nil
	}
	enc := json.NewEncoder(o.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Failure reports err in the selected format and returns it wrapped with
// code, so the command exits accordingly.
func (o *Output) Failure(code int, message string, err error) error {
	exitErr := WrapExitError(code, message, err)
	switch o.Format {
	case "json":
		_ = o.writeJSON(Response{Status: "error", Error: exitErr.Error()})
	case "yaml":
		_ = o.writeYAML(Response{Status: "error", Error: exitErr.Error()})
	}
	return exitErr
}

func (o *Output) writeJSON(r Response) error {
	enc := json.NewEncoder(o.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (o *Output) writeYAML(r Response) error {
	enc := yaml.NewEncoder(o.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func formatRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, err := json.Marshal(row[k])
		if err != nil {
			v = []byte(fmt.Sprint(row[k]))
		}
		parts[i] = k + "=" + string(v)
	}
	return strings.Join(parts, " ")
}

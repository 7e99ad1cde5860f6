// Package ui provides colored terminal output for the sqlitebak CLI.
//
// Colors respect the --no-color flag and the NO_COLOR environment variable,
// and are disabled automatically when output is not a TTY.
//
//   - Red: errors, failed integrity checks
//   - Yellow: warnings
//   - Green: success
//   - Cyan: counts and informational messages
//   - Bold: headers and labels
//   - Dim: paths and fingerprints
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	// Red is used for error messages and failures.
	Red = color.New(color.FgRed)

	// Yellow is used for warnings.
	Yellow = color.New(color.FgYellow)

	// Green is used for success messages.
	Green = color.New(color.FgGreen)

	// Cyan is used for informational messages and counts.
	Cyan = color.New(color.FgCyan)

	// Bold is used for headers and labels.
	Bold = color.New(color.Bold)

	// Dim is used for paths and fingerprints.
	Dim = color.New(color.Faint)
)

var output io.Writer = color.Output

// SetOutput redirects all ui output to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	prev := output
	output = w
	return prev
}

// InitColors configures global color output based on the noColor flag.
func InitColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success prints a green message with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Fprintln(output, "✓ "+msg)
}

// Successf prints a formatted green message with a checkmark prefix.
func Successf(format string, args ...any) {
	_, _ = Green.Fprintf(output, "✓ "+format+"\n", args...)
}

// Warningf prints a formatted yellow message with a warning prefix.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Fprintf(output, "⚠ "+format+"\n", args...)
}

// Error prints a red message with an X prefix.
func Error(msg string) {
	_, _ = Red.Fprintln(output, "✗ "+msg)
}

// Errorf prints a formatted red message with an X prefix.
func Errorf(format string, args ...any) {
	_, _ = Red.Fprintf(output, "✗ "+format+"\n", args...)
}

// Infof prints a formatted cyan message with an info prefix.
func Infof(format string, args ...any) {
	_, _ = Cyan.Fprintf(output, "ℹ "+format+"\n", args...)
}

// Header prints a bold header with an underline separator.
func Header(text string) {
	_, _ = Bold.Fprintln(output, text)
	_, _ = fmt.Fprintln(output, strings.Repeat("=", len(text)))
}

// Field prints an indented "label value" line.
func Field(label string, value any) {
	_, _ = fmt.Fprintf(output, "  %s %v\n", Label(label+":"), value)
}

// Label returns a bold-formatted label string for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns a dim-formatted string.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan-formatted count.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

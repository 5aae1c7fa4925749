// Package output renders command results and errors as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter writes values in a fixed format.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a formatter. FormatAuto is resolved against w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{
		format: DetectFormat(w, format),
		writer: w,
	}
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format {
	return f.format
}

// IsJSON reports whether the formatter emits JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Print writes v as indented JSON, or through its text form. Values that
// implement TextRenderer control their own text layout.
func (f *Formatter) Print(v any) error {
	if f.format == FormatJSON {
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	switch val := v.(type) {
	case TextRenderer:
		return val.RenderText(f.writer)
	case string:
		_, err := fmt.Fprintln(f.writer, val)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.writer, val.String())
		return err
	default:
		_, err := fmt.Fprintf(f.writer, "%v\n", val)
		return err
	}
}

// TextRenderer is implemented by results with a custom text layout.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// DetectFormat resolves FormatAuto: text on a terminal, JSON otherwise.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto && explicit != "" {
		return explicit
	}
	if f, ok := w.(*os.File); ok {
		if term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
			return FormatText
		}
	}
	return FormatJSON
}

// ParseFormat parses a format string; unknown values mean auto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}

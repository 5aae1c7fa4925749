package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// ErrorOutput is the JSON envelope for a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

func describe(err error) ErrorDetail {
	var ke *kkerr.KeeperError
	if errors.As(err, &ke) {
		d := ErrorDetail{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			ExitCode:   ke.ExitCode,
		}
		if ke.Cause != nil {
			d.Cause = ke.Cause.Error()
		}
		return d
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: kkerr.ExitGeneral,
	}
}

// FormatError writes err in the given format. Safety-limit and validation
// errors carry their offending numbers in Details, which are always shown.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	d := describe(err)
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if d.Cause != "" {
		fmt.Fprintf(&sb, "Cause: %s\n", d.Cause)
	}
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// Package cli provides CLI output formatting and display functions.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/gscoppino/STEM/internal/config"
	"github.com/gscoppino/STEM/internal/errhandling"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// PrintConfigError prints a configuration failure to w and returns the
// matching exit code. Errors that are not *config.Error are printed as-is.
func PrintConfigError(w io.Writer, err error, opts OutputOptions) int {
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		fmt.Fprintf(w, "✗ %v\n", err)
		return ExitRuntimeError
	}
	if len(cfgErr.ParseErrors) > 0 {
		PrintParseErrors(w, cfgErr.ParseErrors, opts.Verbose)
		return ExitParseError
	}
	PrintValidationErrors(w, cfgErr.ValidationErrors, opts.Verbose, opts.Quiet)
	return ExitValidationError
}

// PrintParseErrors prints parse errors.
func PrintParseErrors(w io.Writer, errs []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errs {
		location := formatErrorLocation(err.Path, err.Line, err.Column)
		if location != "" {
			fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", err.Message)
		}
		if verbose && err.Type != "" {
			fmt.Fprintf(w, "    Type: %s\n", err.Type)
		}
	}
}

// formatErrorLocation formats path:line:column, dropping unknown parts.
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints schema and semantic validation errors.
func PrintValidationErrors(w io.Writer, errs []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errs {
		path := err.Path
		if path == "" {
			path = "/"
		}

		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
			continue
		}

		msg := err.Message
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		fmt.Fprintf(w, "  %s: %s\n", path, msg)
	}

	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

// PrintFetchError prints a failed fetch. Verbose output adds the error
// category and, for classified errors, whether retrying can help.
func PrintFetchError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "✗ Fetch failed: %v\n", err)
	if !verbose {
		return
	}

	fmt.Fprintf(w, "  Category: %s\n", errhandling.GetErrorCategory(err))
	var classified *errhandling.ClassifiedError
	if !errors.As(err, &classified) {
		return
	}
	switch {
	case errhandling.IsFatal(err):
		fmt.Fprintln(w, "  Retryable: no (check the collection options and the site configuration)")
	case errhandling.IsRetryable(err):
		fmt.Fprintln(w, "  Retryable: yes (use --retries)")
	default:
		fmt.Fprintln(w, "  Retryable: no")
	}
}

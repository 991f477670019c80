package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loamlabs/seedr/internal/document"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one validation failure tied to a file.
type ValidationIssue struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate seed files without loading them",
		Long: `Parse seed documents and check their shape without touching a database.

Catches malformed YAML/JSON, badly typed meta keys, and non-mapping data
blocks. References are not resolved; that requires a load.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var issues []ValidationIssue
	checked := 0
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)

		queue := document.NewQueue()
		if err := queue.AddFile(path); err != nil {
			// Anything past the read is a document problem.
			code := ErrCodeParse
			if errors.Is(err, os.ErrNotExist) {
				code = ErrCodeReadFailed
			}
			issues = append(issues, ValidationIssue{File: path, Code: code, Message: err.Error()})
			continue
		}
		checked += queue.Len()
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, checked, issues)
	}
	return outputValidateSuccess(formatter, checked)
}

// isParseError reports whether err is a document shape or decode failure,
// as opposed to an I/O error.
func isParseError(err error) bool {
	var vErr *document.ValidationError
	return errors.As(err, &vErr)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d file(s) valid\n", files)
	return nil
}

// outputValidationErrors outputs validation failures.
func outputValidationErrors(formatter *OutputFormatter, files int, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		_ = formatter.Error(issues[0].Code, issues[0].Message, ValidationResult{
			Valid:  false,
			Files:  files,
			Errors: issues,
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "%s\n  %s: %s\n\n", issue.File, issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

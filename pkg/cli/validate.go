package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mockdeck/mockdeck/pkg/config"
)

// ValidateResult is the outcome of checking one configuration file.
type ValidateResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Requests int      `json:"requests"`
	Record   bool     `json:"record"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>...",
	Short: "Check configuration files without starting a server",
	Long: `Check one or more configuration files without starting a server.

A file fails when it cannot be parsed, when a request is malformed, or when two
requests share a method and path. Body files whose extension does not match
the declared content type, or that do not exist on disk, are reported as
warnings: the configuration loads, but serving those requests fails.`,
	Example: `  mockdeck validate mocks.yaml
  mockdeck validate --json api.yaml admin.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := make([]ValidateResult, 0, len(args))
		for _, path := range args {
			results = append(results, validateFile(path))
		}
		return reportValidation(cmd.OutOrStdout(), results, jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// errValidationFailed is returned when at least one file is invalid, so the
// process exits non-zero after the report has been printed.
var errValidationFailed = errors.New("validation failed")

func validateFile(path string) ValidateResult {
	res := ValidateResult{File: path}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	res.Valid = true
	res.Requests = cfg.Requests.Len()
	res.Record = cfg.RecordMode()
	for _, problem := range cfg.Requests.FileFormatProblems() {
		res.Warnings = append(res.Warnings, problem.Error())
	}
	for _, req := range cfg.Requests.All() {
		body := req.Response.Body
		if body == nil {
			continue
		}
		if _, err := os.Stat(body.FileLocation); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: body file %s is not readable", req.Key(), body.FileLocation))
		}
	}
	return res
}

func reportValidation(w io.Writer, results []ValidateResult, asJSON bool) error {
	failed := false
	for _, r := range results {
		if !r.Valid {
			failed = true
		}
	}

	if asJSON {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				mode := "mock"
				if r.Record {
					mode = "record"
				}
				fmt.Fprintf(w, "✓ %s: %d requests (%s mode)\n", r.File, r.Requests, mode)
			} else {
				fmt.Fprintf(w, "✗ %s\n", r.File)
			}
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  error: %s\n", e)
			}
			for _, warn := range r.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warn)
			}
		}
	}

	if failed {
		return errValidationFailed
	}
	return nil
}

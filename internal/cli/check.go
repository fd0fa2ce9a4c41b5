package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rapture/internal/compiler"
	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/rules"
	"github.com/roach88/rapture/internal/token"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	RulesPath string
	Strict    bool // warnings fail the check too
}

// DocumentResult is the outcome of checking one document.
type DocumentResult struct {
	File   string     `json:"file"`
	Valid  bool       `json:"valid"`
	Issues []ir.Issue `json:"issues"`
}

// CheckResult holds the overall check result.
type CheckResult struct {
	Documents []DocumentResult `json:"documents"`
	Errors    int              `json:"errors"`
	Warnings  int              `json:"warnings"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <document>...",
		Short: "Validate documents against CUE rules",
		Long: `Validate YAML or JSON documents against a rule written in CUE.

The rules file declares a top-level "rule" node. A directory is loaded
as one CUE package.

Exit codes:
  0 - No error issues
  1 - Error issues found (or warnings, with --strict)
  2 - Command error (unreadable rules or documents)

Examples:
  rapture check --rules rules.cue config.yaml
  rapture check --rules ./rules --format json a.yaml b.json
  RAPTURE_RULES=rules.cue rapture check config.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.RulesPath, "rules", "", "CUE rules file or directory (default from config)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on warnings")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command, docs []string) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rulesPath := opts.RulesPath
	if rulesPath == "" {
		rulesPath = opts.Rules
	}
	if rulesPath == "" {
		_ = out.Error(ErrCodeRules, "no rules given: pass --rules or set rules in the config", nil)
		return NewExitError(ExitCommandError, "no rules given")
	}

	slog.Info("checking documents", "rules", rulesPath, "documents", len(docs))

	rule, err := compiler.Load(rulesPath)
	if err != nil {
		_ = out.Error(ErrCodeRules, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	result := CheckResult{Documents: []DocumentResult{}}
	for _, path := range docs {
		out.VerboseLog("checking %s", path)

		issues, code, err := checkDocument(path, rule)
		if err != nil {
			_ = out.Error(code, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "failed to check "+path, err)
		}

		doc := DocumentResult{File: path, Valid: true, Issues: issues}
		for _, issue := range issues {
			switch issue.Severity {
			case ir.SeverityError:
				result.Errors++
				doc.Valid = false
			case ir.SeverityWarning:
				result.Warnings++
				if opts.Strict {
					doc.Valid = false
				}
			}
		}
		result.Documents = append(result.Documents, doc)
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printCheckText(out, result)
	}

	slog.Info("check finished", "errors", result.Errors, "warnings", result.Warnings)

	failed := 0
	for _, doc := range result.Documents {
		if !doc.Valid {
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) failed", failed))
	}
	return nil
}

// checkDocument applies rule to the document at path and returns the
// issues it raised once settled.
func checkDocument(path string, rule engine.Rule) ([]ir.Issue, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrCodeDocument, err
	}

	doc, err := token.Parse(data)
	if err != nil {
		return nil, ErrCodeDocument, err
	}

	rc, err := rules.Apply(doc, rule)
	if err != nil {
		return nil, ErrCodeEngine, err
	}
	defer rc.Dispose()()

	issues := rc.Issues()
	if issues == nil {
		issues = []ir.Issue{}
	}
	return issues, "", nil
}

func printCheckText(out *OutputFormatter, result CheckResult) {
	for _, doc := range result.Documents {
		if len(doc.Issues) == 0 {
			fmt.Fprintf(out.Writer, "%s: ok\n", doc.File)
			continue
		}
		for _, issue := range doc.Issues {
			out.Issue(doc.File, issue)
		}
	}
	fmt.Fprintf(out.Writer, "\nChecked %d document(s): %d error(s), %d warning(s)\n",
		len(result.Documents), result.Errors, result.Warnings)
}

package ir

import (
	"fmt"
	"strings"
)

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Common issue types raised by the engine and the bundled rules.
const (
	IssueTypeRule   = "rule"
	IssueTypeSchema = "schema"
	IssueTypeExpr   = "expr"
)

// Location points at the source of the node an issue was raised for.
// Line and Column are 1-based; zero means unknown.
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// IsZero reports whether the location carries no information.
func (l Location) IsZero() bool {
	return l.Path == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	switch {
	case l.Line > 0 && l.Path != "":
		return fmt.Sprintf("%s (%d:%d)", l.Path, l.Line, l.Column)
	case l.Line > 0:
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	default:
		return l.Path
	}
}

// Issue describes one validation problem.
//
// Issues have no identity beyond structural equality. They are produced by
// raise calls and consumed only for aggregation and display.
type Issue struct {
	Type     string    `json:"type"`
	From     string    `json:"from,omitempty"`
	Location *Location `json:"location,omitempty"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// NewIssue creates an Issue. An empty severity defaults to SeverityError.
func NewIssue(typ, from string, loc *Location, message string, severity Severity) Issue {
	if severity == "" {
		severity = SeverityError
	}
	var l *Location
	if loc != nil {
		cp := *loc
		l = &cp
	}
	return Issue{
		Type:     typ,
		From:     from,
		Location: l,
		Message:  message,
		Severity: severity,
	}
}

// WithDefaults returns a copy of the issue with an empty From or Location
// filled in from the given values.
func (i Issue) WithDefaults(from string, loc Location) Issue {
	if i.From == "" {
		i.From = from
	}
	if i.Location == nil && !loc.IsZero() {
		cp := loc
		i.Location = &cp
	}
	if i.Severity == "" {
		i.Severity = SeverityError
	}
	return i
}

// Equal compares two issues structurally.
func (i Issue) Equal(other Issue) bool {
	if i.Type != other.Type || i.From != other.From || i.Message != other.Message || i.Severity != other.Severity {
		return false
	}
	if i.Location == nil || other.Location == nil {
		return i.Location == nil && other.Location == nil
	}
	return *i.Location == *other.Location
}

func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", i.Severity, i.Type, i.Message)
	if i.Location != nil && !i.Location.IsZero() {
		fmt.Fprintf(&b, " at %s", i.Location)
	}
	if i.From != "" {
		fmt.Fprintf(&b, " (from %s)", i.From)
	}
	return b.String()
}

// Canonical converts the issue to a map accepted by MarshalCanonical.
func (i Issue) Canonical() map[string]any {
	m := map[string]any{
		"type":     i.Type,
		"message":  i.Message,
		"severity": string(i.Severity),
	}
	if i.From != "" {
		m["from"] = i.From
	}
	if i.Location != nil && !i.Location.IsZero() {
		loc := map[string]any{}
		if i.Location.Path != "" {
			loc["path"] = i.Location.Path
		}
		if i.Location.Line > 0 {
			loc["line"] = i.Location.Line
			loc["column"] = i.Location.Column
		}
		m["location"] = loc
	}
	return m
}

// CanonicalIssues converts a slice of issues for MarshalCanonical.
func CanonicalIssues(issues []Issue) []any {
	out := make([]any, len(issues))
	for idx, issue := range issues {
		out[idx] = issue.Canonical()
	}
	return out
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

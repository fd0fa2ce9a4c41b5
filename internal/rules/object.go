package rules

import (
	"fmt"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/token"
)

// Without fails every property in others that is present alongside key.
// Each issue points at the offending property.
func Without(key string, others ...string) *engine.Logic {
	return &engine.Logic{
		Name:    "object-without",
		Options: engine.Options{UseToken: true},
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, content any, _ engine.Params) {
				tok := content.(*token.Token)
				if tok.Kind() != token.KindMap {
					return
				}

				if field, ok := tok.Field(key); !ok || field.Kind() == token.KindNull {
					report(c)
					return
				}

				var issues []ir.Issue
				for _, other := range others {
					present, ok := tok.Field(other)
					if !ok {
						continue
					}
					loc := present.Location()
					issues = append(issues, ir.NewIssue(ir.IssueTypeSchema, other, &loc,
						fmt.Sprintf("Cannot exist when %q exists", key), ir.SeverityError))
				}
				report(c, issues...)
			},
		},
	}
}

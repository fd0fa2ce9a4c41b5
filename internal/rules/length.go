package rules

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/rapture/internal/engine"
)

const limitParam = "limit"

type bound struct {
	name    string
	measure func(v any) (int, bool)
	fails   func(n int, limit float64) bool
	message func(limit float64) string
}

func stringLength(v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	return utf8.RuneCountInString(s), true
}

func arrayLength(v any) (int, bool) {
	items, ok := v.([]any)
	if !ok {
		return 0, false
	}
	return len(items), true
}

func below(n int, limit float64) bool { return float64(n) < limit }
func above(n int, limit float64) bool { return float64(n) > limit }

// StringMin fails a string shorter than limit characters.
func StringMin(limit any) *engine.Logic {
	return bound{
		name:    "string-min",
		measure: stringLength,
		fails:   below,
		message: func(l float64) string {
			return fmt.Sprintf("Must be greater than %s characters long.", formatNumber(l-1))
		},
	}.logic(limit)
}

// StringMax fails a string longer than limit characters.
func StringMax(limit any) *engine.Logic {
	return bound{
		name:    "string-max",
		measure: stringLength,
		fails:   above,
		message: func(l float64) string {
			return fmt.Sprintf("Must be less than %s characters long.", formatNumber(l+1))
		},
	}.logic(limit)
}

// ArrayMin fails an array with fewer than limit items.
func ArrayMin(limit any) *engine.Logic {
	return bound{
		name:    "array-min",
		measure: arrayLength,
		fails:   below,
		message: func(l float64) string {
			return fmt.Sprintf("Must be greater than %s items long.", formatNumber(l-1))
		},
	}.logic(limit)
}

// ArrayMax fails an array with more than limit items.
func ArrayMax(limit any) *engine.Logic {
	return bound{
		name:    "array-max",
		measure: arrayLength,
		fails:   above,
		message: func(l float64) string {
			return fmt.Sprintf("Must be less than %s items long.", formatNumber(l+1))
		},
	}.logic(limit)
}

// Values of the wrong type pass; Type reports those.
func (b bound) logic(limit any) *engine.Logic {
	return &engine.Logic{
		Name:   b.name,
		Params: map[string]engine.Param{limitParam: param(limit)},
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, content any, p engine.Params) {
				l, ok := p.Number(limitParam)
				if !ok {
					report(c, ruleIssue(fmt.Sprintf("Limit for %s must be a number.", b.name)))
					return
				}

				n, ok := b.measure(content)
				if ok && b.fails(n, l) {
					report(c, schemaIssue(b.message(l)))
					return
				}
				report(c)
			},
		},
	}
}

package rules

import (
	"fmt"
	"math"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/token"
)

// Kind names a document value type.
type Kind string

const (
	KindAny     Kind = "any"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

var kindMessages = map[Kind]string{
	KindString:  "Must be a string.",
	KindNumber:  "Must be a number.",
	KindInteger: "Must be an integer.",
	KindBoolean: "Must be a boolean.",
	KindObject:  "Must be an object.",
	KindArray:   "Must be an array.",
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindMessages[k]; ok || k == KindAny {
		return k, nil
	}
	return "", fmt.Errorf("unknown type %q", s)
}

// Required fails a node that is absent or null.
func Required() *engine.Logic {
	return &engine.Logic{
		Name:    "required",
		Options: engine.Options{UseToken: true},
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, content any, _ engine.Params) {
				if content.(*token.Token).Kind() == token.KindNull {
					report(c, schemaIssue("Is required."))
					return
				}
				report(c)
			},
		},
	}
}

// Type fails a non-null node whose value is not of kind. Null nodes pass;
// combine with Required to reject them.
func Type(kind Kind) *engine.Logic {
	return &engine.Logic{
		Name:    "type-" + string(kind),
		Options: engine.Options{UseToken: true},
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, content any, _ engine.Params) {
				tok := content.(*token.Token)
				if tok.Kind() == token.KindNull || matchesKind(tok, kind) {
					report(c)
					return
				}
				report(c, schemaIssue(kindMessages[kind]))
			},
		},
	}
}

func matchesKind(tok *token.Token, kind Kind) bool {
	switch kind {
	case KindAny:
		return true
	case KindObject:
		return tok.Kind() == token.KindMap
	case KindArray:
		return tok.Kind() == token.KindSeq
	}

	if tok.Kind() != token.KindScalar {
		return false
	}

	switch v := tok.Raw().(type) {
	case string:
		return kind == KindString
	case bool:
		return kind == KindBoolean
	default:
		n, ok := engine.ToNumber(v)
		if !ok {
			return false
		}
		if kind == KindInteger {
			return n == math.Trunc(n)
		}
		return kind == KindNumber
	}
}

package token

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rapture/internal/ir"
)

// Kind classifies a token.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindMap
	KindSeq
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindMap:
		return "map"
	case KindSeq:
		return "seq"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Issuer is anything that reports issues for a token, usually a rule
// context attached to it.
type Issuer interface {
	Issues() []ir.Issue
}

// Token is one node of a parsed document.
type Token struct {
	kind     Kind
	raw      any
	keys     []string
	fields   map[string]*Token
	items    []*Token
	loc      ir.Location
	attached []Issuer
}

// Parse parses a YAML or JSON document. An empty document yields a null
// token.
func Parse(data []byte) (*Token, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	node := &doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return Missing(""), nil
		}
		node = node.Content[0]
	}
	if node.Kind == 0 {
		return Missing(""), nil
	}

	return fromNode(node, "")
}

func fromNode(node *yaml.Node, path string) (*Token, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	t := &Token{loc: ir.Location{Path: path, Line: node.Line, Column: node.Column}}

	switch node.Kind {
	case yaml.MappingNode:
		t.kind = KindMap
		t.fields = make(map[string]*Token, len(node.Content)/2)
		raw := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			child, err := fromNode(node.Content[i+1], joinKey(path, key))
			if err != nil {
				return nil, err
			}
			if _, dup := t.fields[key]; !dup {
				t.keys = append(t.keys, key)
			}
			t.fields[key] = child
			raw[key] = child.raw
		}
		t.raw = raw

	case yaml.SequenceNode:
		t.kind = KindSeq
		raw := make([]any, 0, len(node.Content))
		for i, item := range node.Content {
			child, err := fromNode(item, joinIndex(path, i))
			if err != nil {
				return nil, err
			}
			t.items = append(t.items, child)
			raw = append(raw, child.raw)
		}
		t.raw = raw

	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s at %d:%d: %w", displayPath(path), node.Line, node.Column, err)
		}
		if v == nil {
			t.kind = KindNull
		} else {
			t.kind = KindScalar
			t.raw = v
		}

	default:
		return nil, fmt.Errorf("unsupported yaml node kind %d at %d:%d", node.Kind, node.Line, node.Column)
	}

	return t, nil
}

// FromValue builds a token tree from plain Go values. Map keys are
// ordered lexically. Tokens built this way carry paths but no line info.
func FromValue(v any) *Token {
	return fromValue(v, "")
}

func fromValue(v any, path string) *Token {
	t := &Token{loc: ir.Location{Path: path}}

	switch val := v.(type) {
	case nil:
		t.kind = KindNull
	case map[string]any:
		t.kind = KindMap
		t.fields = make(map[string]*Token, len(val))
		raw := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := fromValue(val[k], joinKey(path, k))
			t.keys = append(t.keys, k)
			t.fields[k] = child
			raw[k] = child.raw
		}
		t.raw = raw
	case []any:
		t.kind = KindSeq
		raw := make([]any, 0, len(val))
		for i, item := range val {
			child := fromValue(item, joinIndex(path, i))
			t.items = append(t.items, child)
			raw = append(raw, child.raw)
		}
		t.raw = raw
	default:
		t.kind = KindScalar
		t.raw = v
	}

	return t
}

// Missing returns a null token standing in for an absent node at path.
func Missing(path string) *Token {
	return &Token{kind: KindNull, loc: ir.Location{Path: path}}
}

// Kind returns the token kind.
func (t *Token) Kind() Kind { return t.kind }

// Raw returns the plain Go value of the token: nil, a scalar,
// map[string]any or []any.
func (t *Token) Raw() any { return t.raw }

// Location returns where the token came from.
func (t *Token) Location() ir.Location { return t.loc }

// Path returns the dotted path of the token from the document root.
func (t *Token) Path() string { return t.loc.Path }

// Keys returns the keys of a map token in document order.
func (t *Token) Keys() []string { return slices.Clone(t.keys) }

// Field returns the child token for key.
func (t *Token) Field(key string) (*Token, bool) {
	child, ok := t.fields[key]
	return child, ok
}

// FieldOrMissing returns the child token for key or a Missing token with
// the child's path.
func (t *Token) FieldOrMissing(key string) *Token {
	if child, ok := t.fields[key]; ok {
		return child
	}
	return Missing(joinKey(t.loc.Path, key))
}

// Items returns the children of a seq token.
func (t *Token) Items() []*Token { return slices.Clone(t.items) }

// Len returns the number of children of a map or seq token.
func (t *Token) Len() int {
	switch t.kind {
	case KindMap:
		return len(t.keys)
	case KindSeq:
		return len(t.items)
	default:
		return 0
	}
}

// AddRuleContext attaches an issuer to the token.
func (t *Token) AddRuleContext(rc Issuer) {
	t.attached = append(t.attached, rc)
}

// RemoveRuleContext detaches an issuer. Unknown issuers are ignored.
func (t *Token) RemoveRuleContext(rc Issuer) {
	t.attached = slices.DeleteFunc(t.attached, func(x Issuer) bool { return x == rc })
}

// RuleContexts returns the attached issuers.
func (t *Token) RuleContexts() []Issuer { return slices.Clone(t.attached) }

// Issues returns the issues of every attached issuer in attachment order.
func (t *Token) Issues() []ir.Issue {
	var issues []ir.Issue
	for _, rc := range t.attached {
		issues = append(issues, rc.Issues()...)
	}
	return issues
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

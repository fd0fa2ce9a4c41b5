package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/rules"
)

// RuleField is the top-level field holding the root node.
const RuleField = "rule"

// nodeFields lists the recognized node fields in chaining order.
var nodeFields = []string{
	"required",
	"type",
	"minLength",
	"maxLength",
	"minItems",
	"maxItems",
	"without",
	"expr",
	"keys",
	"items",
	"register",
}

// Compile compiles the "rule" field of v.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: {type: "object", keys: name: required: true}`)
//	rule, err := Compile(v)
func Compile(v cue.Value) (engine.Rule, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(RuleField, err)
	}

	root := v.LookupPath(cue.ParsePath(RuleField))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   RuleField,
			Message: "rule is required",
			Pos:     v.Pos(),
		}
	}
	return CompileNode(root, RuleField)
}

// CompileNode compiles one rule node. path names the node in errors.
func CompileNode(v cue.Value, path string) (engine.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "rule node must be a struct", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(path, err)
	}
	present := make(map[string]cue.Value)
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !slices.Contains(nodeFields, label) {
			return nil, &CompileError{
				Field:   join(path, label),
				Message: fmt.Sprintf("unknown rule field %q", label),
				Pos:     iter.Value().Pos(),
			}
		}
		present[label] = iter.Value()
	}

	var steps []*engine.Logic
	for _, name := range nodeFields {
		fv, ok := present[name]
		if !ok {
			continue
		}
		compiled, err := compileField(name, fv, join(path, name))
		if err != nil {
			return nil, err
		}
		steps = append(steps, compiled...)
	}

	return rules.Chain(steps...), nil
}

func compileField(name string, v cue.Value, path string) ([]*engine.Logic, error) {
	switch name {
	case "required":
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		if !b {
			return nil, nil
		}
		return []*engine.Logic{rules.Required()}, nil

	case "type":
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		kind, err := rules.ParseKind(s)
		if err != nil {
			return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		return []*engine.Logic{rules.Type(kind)}, nil

	case "minLength", "maxLength", "minItems", "maxItems":
		limit, err := compileLimit(v, path)
		if err != nil {
			return nil, err
		}
		return []*engine.Logic{boundFor(name)(limit)}, nil

	case "without":
		return eachOf(v, path, compileWithout)

	case "expr":
		return eachOf(v, path, compileExpr)

	case "keys":
		return compileKeys(v, path)

	case "items":
		rule, err := CompileNode(v, path)
		if err != nil {
			return nil, err
		}
		return []*engine.Logic{rules.Items(rule)}, nil

	case "register":
		return compileRegister(v, path)
	}

	return nil, &CompileError{Field: path, Message: "unhandled rule field", Pos: v.Pos()}
}

func boundFor(name string) func(any) *engine.Logic {
	switch name {
	case "minLength":
		return rules.StringMin
	case "maxLength":
		return rules.StringMax
	case "minItems":
		return rules.ArrayMin
	default:
		return rules.ArrayMax
	}
}

// eachOf compiles v as a single struct or as a list of structs.
func eachOf(v cue.Value, path string, fn func(cue.Value, string) (*engine.Logic, error)) ([]*engine.Logic, error) {
	if v.IncompleteKind() != cue.ListKind {
		l, err := fn(v, path)
		if err != nil {
			return nil, err
		}
		return []*engine.Logic{l}, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(path, err)
	}
	var out []*engine.Logic
	for i := 0; iter.Next(); i++ {
		l, err := fn(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// compileLimit accepts a number or a {ref: id} reference to a scope entry.
func compileLimit(v cue.Value, path string) (any, error) {
	switch v.IncompleteKind() {
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return f, nil
	case cue.StructKind:
		if id, ok, err := refOf(v, path); ok || err != nil {
			if err != nil {
				return nil, err
			}
			return rules.Ref(id), nil
		}
	}
	return nil, &CompileError{Field: path, Message: "must be a number or {ref: string}", Pos: v.Pos()}
}

// refOf reports whether v is a {ref: id} struct.
func refOf(v cue.Value, path string) (string, bool, error) {
	ref := v.LookupPath(cue.ParsePath("ref"))
	if !ref.Exists() {
		return "", false, nil
	}
	id, err := ref.String()
	if err != nil {
		return "", true, formatCUEError(join(path, "ref"), err)
	}
	if id == "" {
		return "", true, &CompileError{Field: join(path, "ref"), Message: "ref must be non-empty", Pos: ref.Pos()}
	}
	return id, true, nil
}

func compileWithout(v cue.Value, path string) (*engine.Logic, error) {
	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return nil, &CompileError{Field: join(path, "key"), Message: "key is required", Pos: v.Pos()}
	}
	key, err := keyVal.String()
	if err != nil {
		return nil, formatCUEError(join(path, "key"), err)
	}

	var others []string
	if o := v.LookupPath(cue.ParsePath("others")); o.Exists() {
		if err := o.Decode(&others); err != nil {
			return nil, formatCUEError(join(path, "others"), err)
		}
	}
	if len(others) == 0 {
		return nil, &CompileError{Field: join(path, "others"), Message: "at least one other key is required", Pos: v.Pos()}
	}

	return rules.Without(key, others...), nil
}

func compileExpr(v cue.Value, path string) (*engine.Logic, error) {
	codeVal := v.LookupPath(cue.ParsePath("code"))
	if !codeVal.Exists() {
		return nil, &CompileError{Field: join(path, "code"), Message: "code is required", Pos: v.Pos()}
	}
	code, err := codeVal.String()
	if err != nil {
		return nil, formatCUEError(join(path, "code"), err)
	}

	var message string
	if m := v.LookupPath(cue.ParsePath("message")); m.Exists() {
		if message, err = m.String(); err != nil {
			return nil, formatCUEError(join(path, "message"), err)
		}
	}

	var params map[string]any
	if p := v.LookupPath(cue.ParsePath("params")); p.Exists() {
		if params, err = compileParams(p, join(path, "params")); err != nil {
			return nil, err
		}
	}

	l, err := rules.Expr(code, message, params)
	if err != nil {
		return nil, &CompileError{Field: join(path, "code"), Message: err.Error(), Pos: codeVal.Pos()}
	}
	return l, nil
}

// compileParams maps each parameter to a concrete value, or to a Ref unit
// for {ref: id}.
func compileParams(v cue.Value, path string) (map[string]any, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(path, err)
	}

	params := make(map[string]any)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		pv := iter.Value()
		ppath := join(path, name)

		if pv.IncompleteKind() == cue.StructKind {
			if id, ok, err := refOf(pv, ppath); ok || err != nil {
				if err != nil {
					return nil, err
				}
				params[name] = rules.Ref(id)
				continue
			}
		}

		value, err := concrete(pv, ppath)
		if err != nil {
			return nil, err
		}
		params[name] = value
	}
	return params, nil
}

// concrete decodes a value the way documents are decoded: numbers become
// float64, structs maps and lists slices.
func concrete(v cue.Value, path string) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return b, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return s, nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return f, nil
	}

	var out any
	if err := v.Decode(&out); err != nil {
		return nil, formatCUEError(path, err)
	}
	return out, nil
}

func compileKeys(v cue.Value, path string) ([]*engine.Logic, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(path, err)
	}

	props := make(map[string]engine.Rule)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		rule, err := CompileNode(iter.Value(), join(path, name))
		if err != nil {
			return nil, err
		}
		props[name] = rule
	}
	return []*engine.Logic{rules.Keys(props)}, nil
}

// compileRegister accepts an id string, or {id, scope?} where id may itself
// be a {ref: id} indirection.
func compileRegister(v cue.Value, path string) ([]*engine.Logic, error) {
	if v.IncompleteKind() == cue.StringKind {
		id, err := v.String()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		if id == "" {
			return nil, &CompileError{Field: path, Message: "register id must be non-empty", Pos: v.Pos()}
		}
		return []*engine.Logic{rules.Register(id, "")}, nil
	}

	var targetScope string
	if s := v.LookupPath(cue.ParsePath("scope")); s.Exists() {
		var err error
		if targetScope, err = s.String(); err != nil {
			return nil, formatCUEError(join(path, "scope"), err)
		}
	}

	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return nil, &CompileError{Field: join(path, "id"), Message: "id is required", Pos: v.Pos()}
	}
	if idVal.IncompleteKind() == cue.StructKind {
		ref, ok, err := refOf(idVal, join(path, "id"))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: join(path, "id"), Message: "must be a string or {ref: string}", Pos: idVal.Pos()}
		}
		return []*engine.Logic{rules.Register(rules.Ref(ref), targetScope)}, nil
	}

	id, err := idVal.String()
	if err != nil {
		return nil, formatCUEError(join(path, "id"), err)
	}
	return []*engine.Logic{rules.Register(id, targetScope)}, nil
}

func join(path, label string) string {
	if path == "" {
		return label
	}
	return path + "." + label
}

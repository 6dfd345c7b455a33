package command

import (
	"fmt"
	"math"
)

// Args holds the validated, typed parameter values for one invocation.
// Values are present for every declared parameter: omitted optional
// parameters carry their declared default (or a zero value).
type Args map[string]Value

// Value is one typed argument value.
type Value struct {
	Str string
	Int int64
	// Set reports whether the invoker supplied the value explicitly
	// (false when it came from a default).
	Set bool
}

// String returns the string value of the named argument.
func (a Args) String(name string) string {
	return a[name].Str
}

// Int returns the integer value of the named argument.
func (a Args) Int(name string) int64 {
	return a[name].Int
}

// Provided reports whether the invoker supplied the named argument.
func (a Args) Provided(name string) bool {
	return a[name].Set
}

// BuildArgs validates raw option values from the gateway against a
// declared parameter list and produces typed Args. It enforces
// requiredness, primitive types, and enumerated choices; range checks
// are per-command semantics and stay in the handlers.
func BuildArgs(params []Param, options map[string]any) (Args, error) {
	args := make(Args, len(params))

	for _, p := range params {
		raw, ok := options[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			args[p.Name] = defaultValue(p)
			continue
		}

		v, err := convert(p, raw)
		if err != nil {
			return nil, err
		}
		args[p.Name] = v
	}

	return args, nil
}

// convert coerces one raw option value to its declared type.
func convert(p Param, raw any) (Value, error) {
	switch p.Type {
	case TypeInteger:
		n, err := toInt64(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		return Value{Int: n, Set: true}, nil

	case TypeString, TypeUser, TypeRole, TypeChannel:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("parameter %q: expected string, got %T", p.Name, raw)
		}
		if len(p.Choices) > 0 && !contains(p.Choices, s) {
			return Value{}, fmt.Errorf("parameter %q: %q is not one of %v", p.Name, s, p.Choices)
		}
		return Value{Str: s, Set: true}, nil

	default:
		return Value{}, fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
	}
}

// defaultValue produces the Value for an omitted optional parameter.
func defaultValue(p Param) Value {
	switch d := p.Default.(type) {
	case string:
		return Value{Str: d}
	case int64:
		return Value{Int: d}
	case int:
		return Value{Int: int64(d)}
	default:
		return Value{}
	}
}

// toInt64 accepts the integer encodings JSON decoding can produce.
func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func contains(choices []string, s string) bool {
	for _, c := range choices {
		if c == s {
			return true
		}
	}
	return false
}

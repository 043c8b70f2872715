// Package eval compiles and evaluates alarm rules: side-effect-free
// boolean expressions over the fields of a converted archive record.
//
// Rules see only the record's fields, literals, and a small set of
// value-conversion functions (int, float, string, abs). Comparison,
// arithmetic, boolean, and bitwise operators are available, so rules
// like "outTemp >= 30.0" and "int(txBatteryStatus) & 0x02" both work.
package eval

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Knetic/govaluate"
)

// Kind classifies an evaluation failure.
type Kind int

const (
	// KindUndefinedVariable: the rule references a name absent from the
	// record. Routine - stations drop fields between records.
	KindUndefinedVariable Kind = iota
	// KindTypeValue: operator/operand mismatch or bad conversion.
	// Signals a misconfigured rule.
	KindTypeValue
	// KindUnexpected: anything else.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindUndefinedVariable:
		return "undefined_variable"
	case KindTypeValue:
		return "type_value"
	default:
		return "unexpected"
	}
}

// Error is a typed rule evaluation failure.
type Error struct {
	Kind Kind
	Rule string
	Name string // offending variable, for KindUndefinedVariable
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindUndefinedVariable {
		return fmt.Sprintf("rule %q: undefined variable %q", e.Rule, e.Name)
	}
	return fmt.Sprintf("rule %q: %s: %v", e.Rule, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// conversions are the only functions rules may call.
var conversions = map[string]govaluate.ExpressionFunction{
	"int": func(args ...any) (any, error) {
		f, err := oneNumber("int", args)
		if err != nil {
			return nil, err
		}
		return math.Trunc(f), nil
	},
	"float": func(args ...any) (any, error) {
		return oneNumber("float", args)
	},
	"string": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("string() takes one argument")
		}
		return fmt.Sprintf("%v", args[0]), nil
	},
	"abs": func(args ...any) (any, error) {
		f, err := oneNumber("abs", args)
		if err != nil {
			return nil, err
		}
		return math.Abs(f), nil
	},
}

func oneNumber(name string, args []any) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s() takes one argument", name)
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s(%q): %w", name, v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s(%T): not a number", name, args[0])
	}
}

// Program is a compiled rule ready for repeated evaluation.
type Program struct {
	rule   string
	expr   *govaluate.EvaluableExpression
	idents []string
}

// Compile parses a rule once at configuration load. A rule that does
// not parse is rejected here rather than failing on every record.
func Compile(rule string) (*Program, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(rule, conversions)
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", rule, err)
	}
	return &Program{rule: rule, expr: expr, idents: expr.Vars()}, nil
}

// Rule returns the original rule text.
func (p *Program) Rule() string { return p.rule }

// Eval runs the compiled rule against env and coerces the result to a
// boolean. Env access is read-only; the rule sees nothing beyond env
// and the conversion functions.
func (p *Program) Eval(env map[string]any) (result bool, err error) {
	// Missing variables are detected up front so they classify cleanly,
	// rather than surfacing as a generic evaluation error.
	for _, name := range p.idents {
		if _, ok := env[name]; !ok {
			return false, &Error{Kind: KindUndefinedVariable, Rule: p.rule, Name: name}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = false
			err = &Error{Kind: KindUnexpected, Rule: p.rule, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, rerr := p.expr.Evaluate(normalize(env))
	if rerr != nil {
		return false, &Error{Kind: KindTypeValue, Rule: p.rule, Err: rerr}
	}
	return p.truthy(out)
}

// normalize widens integer record values to float64, the only numeric
// type the expression engine computes with.
func normalize(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int32:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		case uint:
			out[k] = float64(n)
		case uint64:
			out[k] = float64(n)
		case float32:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

// truthy coerces a rule result to a boolean: numeric results are true
// when nonzero (bitmask rules yield numbers, not booleans), strings
// when non-empty.
func (p *Program) truthy(v any) (bool, error) {
	switch n := v.(type) {
	case nil:
		return false, nil
	case bool:
		return n, nil
	case float64:
		return n != 0, nil
	case string:
		return n != "", nil
	default:
		return false, &Error{
			Kind: KindTypeValue,
			Rule: p.rule,
			Err:  fmt.Errorf("rule result %T is not coercible to bool", v),
		}
	}
}

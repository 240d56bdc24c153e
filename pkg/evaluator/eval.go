package evaluator

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// boundMethod is a method value produced by attribute access, callable
// only through callNode.
type boundMethod struct {
	name string
	call func(args []any) (any, error)
}

// Eval compiles and evaluates a single expression against the context.
func Eval(src string, ctx map[string]any) (any, error) {
	expr, err := parseExpression(src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	return eval(expr, ctx)
}

// EvalBool evaluates an expression and reduces it with truthiness.
func EvalBool(src string, ctx map[string]any) (bool, error) {
	v, err := Eval(src, ctx)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Truthy applies Python-style truthiness: nil, false, zero numbers,
// and empty strings/lists/dicts are false; everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case map[string]string:
		return len(val) > 0
	default:
		return true
	}
}

func eval(n node, ctx map[string]any) (any, error) {
	switch node := n.(type) {
	case *literalNode:
		return node.value, nil

	case *identNode:
		if v, ok := ctx[node.name]; ok {
			return normalize(v), nil
		}
		if _, ok := builtins[node.name]; ok {
			return &boundMethod{name: node.name, call: func(args []any) (any, error) {
				return callBuiltin(node.name, args)
			}}, nil
		}
		return nil, fmt.Errorf("name %q is not defined", node.name)

	case *listNode:
		items := make([]any, 0, len(node.items))
		for _, item := range node.items {
			v, err := eval(item, ctx)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case *dictNode:
		out := make(map[string]any, len(node.keys))
		for i, keyExpr := range node.keys {
			key, err := eval(keyExpr, ctx)
			if err != nil {
				return nil, err
			}
			value, err := eval(node.values[i], ctx)
			if err != nil {
				return nil, err
			}
			out[Str(key)] = value
		}
		return out, nil

	case *unaryNode:
		v, err := eval(node.operand, ctx)
		if err != nil {
			return nil, err
		}
		switch node.op {
		case "not":
			return !Truthy(v), nil
		case "-":
			switch num := v.(type) {
			case int64:
				return -num, nil
			case float64:
				return -num, nil
			}
			return nil, fmt.Errorf("bad operand type for unary -: %s", typeName(v))
		}
		return nil, fmt.Errorf("unknown unary operator %q", node.op)

	case *boolNode:
		left, err := eval(node.left, ctx)
		if err != nil {
			return nil, err
		}
		// Short-circuit, returning the deciding operand like Python.
		if node.op == "and" {
			if !Truthy(left) {
				return left, nil
			}
			return eval(node.right, ctx)
		}
		if Truthy(left) {
			return left, nil
		}
		return eval(node.right, ctx)

	case *condNode:
		cond, err := eval(node.cond, ctx)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return eval(node.then, ctx)
		}
		return eval(node.els, ctx)

	case *binaryNode:
		left, err := eval(node.left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := eval(node.right, ctx)
		if err != nil {
			return nil, err
		}
		return binaryOp(node.op, left, right)

	case *indexNode:
		base, err := eval(node.base, ctx)
		if err != nil {
			return nil, err
		}
		index, err := eval(node.index, ctx)
		if err != nil {
			return nil, err
		}
		return indexValue(base, index)

	case *attrNode:
		base, err := eval(node.base, ctx)
		if err != nil {
			return nil, err
		}
		return attrValue(base, node.name)

	case *callNode:
		callee, err := eval(node.callee, ctx)
		if err != nil {
			return nil, err
		}
		method, ok := callee.(*boundMethod)
		if !ok {
			return nil, fmt.Errorf("%s is not callable", typeName(callee))
		}
		args := make([]any, 0, len(node.args))
		for _, argExpr := range node.args {
			v, err := eval(argExpr, ctx)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return method.call(args)
	}
	return nil, fmt.Errorf("unknown expression node %T", n)
}

// normalize converts host values into the interpreter's canonical
// types so comparisons and arithmetic behave uniformly.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

func binaryOp(op string, left, right any) (any, error) {
	switch op {
	case "+":
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
			return nil, fmt.Errorf("can only concatenate str to str, not %s", typeName(right))
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				return append(append([]any{}, ll...), rl...), nil
			}
			return nil, fmt.Errorf("can only concatenate list to list, not %s", typeName(right))
		}
		return arith(op, left, right)
	case "-", "*", "/", "//", "%", "**":
		if op == "*" {
			// String repetition: "ab" * 3.
			if s, ok := left.(string); ok {
				if n, ok := right.(int64); ok {
					return strings.Repeat(s, int(max64(n, 0))), nil
				}
			}
			if n, ok := left.(int64); ok {
				if s, ok := right.(string); ok {
					return strings.Repeat(s, int(max64(n, 0))), nil
				}
			}
		}
		return arith(op, left, right)
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(op, left, right)
	case "in":
		return containsValue(left, right)
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func arith(op string, left, right any) (any, error) {
	li, lInt := left.(int64)
	ri, rInt := right.(int64)

	// Integer arithmetic, except true division which always floats.
	if lInt && rInt && op != "/" {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "//":
			if ri == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			return floorDivInt(li, ri), nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("integer modulo by zero")
			}
			return pyModInt(li, ri), nil
		case "**":
			return powInt(li, ri)
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, typeName(left), typeName(right))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(math.Mod(lf, rf)+rf, rf), nil
	case "**":
		return math.Pow(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator %q", op)
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func pyModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func powInt(base, exp int64) (any, error) {
	if exp < 0 {
		return math.Pow(float64(base), float64(exp)), nil
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result, nil
}

func equalValues(left, right any) bool {
	if lf, ok := toFloat(left); ok {
		if rf, rok := toFloat(right); rok {
			// bool is not a number here.
			_, lb := left.(bool)
			_, rb := right.(bool)
			if !lb && !rb {
				return lf == rf
			}
		}
	}
	return reflect.DeepEqual(left, right)
}

func compareOrdered(op string, left, right any) (any, error) {
	if lf, ok := toFloat(left); ok {
		if rf, rok := toFloat(right); rok {
			return applyOrder(op, compareFloats(lf, rf)), nil
		}
	}
	if ls, ok := left.(string); ok {
		if rs, rok := right.(string); rok {
			return applyOrder(op, strings.Compare(ls, rs)), nil
		}
	}
	return nil, fmt.Errorf("%q not supported between %s and %s", op, typeName(left), typeName(right))
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func containsValue(needle, haystack any) (any, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("'in <string>' requires string, not %s", typeName(needle))
		}
		return strings.Contains(h, s), nil
	case []any:
		for _, item := range h {
			if equalValues(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := h[Str(needle)]
		return ok, nil
	}
	return nil, fmt.Errorf("argument of type %s is not iterable", typeName(haystack))
}

func indexValue(base, index any) (any, error) {
	switch b := base.(type) {
	case map[string]any:
		v, ok := b[Str(index)]
		if !ok {
			return nil, fmt.Errorf("key %q not found", Str(index))
		}
		return normalize(v), nil
	case []any:
		i, ok := index.(int64)
		if !ok {
			return nil, fmt.Errorf("list indices must be integers, not %s", typeName(index))
		}
		if i < 0 {
			i += int64(len(b))
		}
		if i < 0 || i >= int64(len(b)) {
			return nil, fmt.Errorf("list index out of range")
		}
		return normalize(b[i]), nil
	case string:
		i, ok := index.(int64)
		if !ok {
			return nil, fmt.Errorf("string indices must be integers, not %s", typeName(index))
		}
		runes := []rune(b)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, fmt.Errorf("string index out of range")
		}
		return string(runes[i]), nil
	}
	return nil, fmt.Errorf("%s is not subscriptable", typeName(base))
}

// attrValue resolves the small allow-list of methods available on
// dictionaries and strings. Anything else is an error; there is no
// generic attribute access.
func attrValue(base any, name string) (any, error) {
	switch b := base.(type) {
	case map[string]any:
		switch name {
		case "get":
			return &boundMethod{name: "dict.get", call: func(args []any) (any, error) {
				if len(args) < 1 || len(args) > 2 {
					return nil, fmt.Errorf("get expects 1 or 2 arguments, got %d", len(args))
				}
				if v, ok := b[Str(args[0])]; ok {
					return normalize(v), nil
				}
				if len(args) == 2 {
					return args[1], nil
				}
				return nil, nil
			}}, nil
		case "keys":
			return &boundMethod{name: "dict.keys", call: func(args []any) (any, error) {
				out := make([]any, 0, len(b))
				for k := range b {
					out = append(out, k)
				}
				sortValues(out)
				return out, nil
			}}, nil
		case "values":
			return &boundMethod{name: "dict.values", call: func(args []any) (any, error) {
				keys := make([]any, 0, len(b))
				for k := range b {
					keys = append(keys, k)
				}
				sortValues(keys)
				out := make([]any, 0, len(b))
				for _, k := range keys {
					out = append(out, normalize(b[k.(string)]))
				}
				return out, nil
			}}, nil
		}
	case string:
		switch name {
		case "lower":
			return stringMethod(name, func() any { return strings.ToLower(b) }), nil
		case "upper":
			return stringMethod(name, func() any { return strings.ToUpper(b) }), nil
		case "strip":
			return stringMethod(name, func() any { return strings.TrimSpace(b) }), nil
		case "startswith":
			return stringPredicate(name, b, strings.HasPrefix), nil
		case "endswith":
			return stringPredicate(name, b, strings.HasSuffix), nil
		}
	}
	return nil, fmt.Errorf("%s has no attribute %q", typeName(base), name)
}

func stringMethod(name string, fn func() any) *boundMethod {
	return &boundMethod{name: "str." + name, call: func(args []any) (any, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("%s takes no arguments", name)
		}
		return fn(), nil
	}}
}

func stringPredicate(name, receiver string, fn func(s, affix string) bool) *boundMethod {
	return &boundMethod{name: "str." + name, call: func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		affix, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string argument", name)
		}
		return fn(receiver, affix), nil
	}}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case *boundMethod:
		return "function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

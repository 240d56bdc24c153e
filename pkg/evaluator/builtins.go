package evaluator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// builtins is the call allow-list. Every entry mirrors the Python
// builtin of the same name closely enough for operator scripts.
var builtins = map[string]func(args []any) (any, error){
	"int":       builtinInt,
	"str":       builtinStr,
	"float":     builtinFloat,
	"bool":      builtinBool,
	"len":       builtinLen,
	"max":       builtinMax,
	"min":       builtinMin,
	"sum":       builtinSum,
	"abs":       builtinAbs,
	"round":     builtinRound,
	"sorted":    builtinSorted,
	"reversed":  builtinReversed,
	"enumerate": builtinEnumerate,
	"zip":       builtinZip,
	"range":     builtinRange,
	"list":      builtinList,
	"dict":      builtinDict,
	"set":       builtinSet,
	"tuple":     builtinList, // tuples are lists here
	"any":       builtinAny,
	"all":       builtinAll,
}

func callBuiltin(name string, args []any) (any, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("name %q is not defined", name)
	}
	v, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func builtinInt(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			// Python accepts "3.0" only through float; match the
			// common operator expectation and fall back to float.
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return nil, fmt.Errorf("invalid literal %q", v)
			}
			return int64(f), nil
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot convert %s", typeName(args[0]))
}

func builtinFloat(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal %q", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %s", typeName(args[0]))
}

func builtinStr(args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expects at most 1 argument, got %d", len(args))
	}
	return Str(args[0]), nil
}

func builtinBool(args []any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expects at most 1 argument, got %d", len(args))
	}
	return Truthy(args[0]), nil
}

func builtinLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return int64(len([]rune(v))), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	}
	return nil, fmt.Errorf("%s has no len()", typeName(args[0]))
}

// sequenceArgs flattens max/min-style calls: a single list argument or
// two-plus scalars.
func sequenceArgs(args []any) ([]any, error) {
	if len(args) == 1 {
		seq, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("expects a list or multiple arguments")
		}
		if len(seq) == 0 {
			return nil, fmt.Errorf("empty sequence")
		}
		return seq, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("expects at least 1 argument")
	}
	return args, nil
}

func builtinMax(args []any) (any, error) {
	seq, err := sequenceArgs(args)
	if err != nil {
		return nil, err
	}
	best := seq[0]
	for _, v := range seq[1:] {
		greater, err := compareOrdered(">", v, best)
		if err != nil {
			return nil, err
		}
		if greater.(bool) {
			best = v
		}
	}
	return best, nil
}

func builtinMin(args []any) (any, error) {
	seq, err := sequenceArgs(args)
	if err != nil {
		return nil, err
	}
	best := seq[0]
	for _, v := range seq[1:] {
		less, err := compareOrdered("<", v, best)
		if err != nil {
			return nil, err
		}
		if less.(bool) {
			best = v
		}
	}
	return best, nil
}

func builtinSum(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("expects 1 or 2 arguments, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("expects a list")
	}
	var total any = int64(0)
	if len(args) == 2 {
		total = args[1]
	}
	for _, v := range seq {
		next, err := arith("+", total, v)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}

func builtinAbs(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("bad operand type %s", typeName(args[0]))
}

func builtinRound(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("expects 1 or 2 arguments, got %d", len(args))
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("bad operand type %s", typeName(args[0]))
	}
	digits := int64(0)
	if len(args) == 2 {
		d, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("ndigits must be int")
		}
		digits = d
	}
	shift := 1.0
	for i := int64(0); i < digits; i++ {
		shift *= 10
	}
	rounded := float64(int64(f*shift+copysign(0.5, f))) / shift
	if len(args) == 1 {
		return int64(rounded), nil
	}
	return rounded, nil
}

func copysign(mag, sign float64) float64 {
	if sign < 0 {
		return -mag
	}
	return mag
}

func builtinSorted(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("expects a list")
	}
	out := append([]any{}, seq...)
	sortValues(out)
	return out, nil
}

// sortValues orders a slice of numbers or strings in place.
func sortValues(values []any) {
	sort.SliceStable(values, func(i, j int) bool {
		less, err := compareOrdered("<", values[i], values[j])
		if err != nil {
			return Str(values[i]) < Str(values[j])
		}
		return less.(bool)
	})
}

func builtinReversed(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		if s, sok := args[0].(string); sok {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		}
		return nil, fmt.Errorf("expects a list or string")
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[len(seq)-1-i] = v
	}
	return out, nil
}

func builtinEnumerate(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("expects 1 or 2 arguments, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("expects a list")
	}
	start := int64(0)
	if len(args) == 2 {
		s, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("start must be int")
		}
		start = s
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = []any{start + int64(i), v}
	}
	return out, nil
}

func builtinZip(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	seqs := make([][]any, len(args))
	shortest := -1
	for i, arg := range args {
		seq, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("expects lists")
		}
		seqs[i] = seq
		if shortest == -1 || len(seq) < shortest {
			shortest = len(seq)
		}
	}
	out := make([]any, shortest)
	for i := 0; i < shortest; i++ {
		row := make([]any, len(seqs))
		for j, seq := range seqs {
			row[j] = seq[i]
		}
		out[i] = row
	}
	return out, nil
}

func builtinRange(args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	ints := make([]int64, len(args))
	for i, arg := range args {
		n, ok := arg.(int64)
		if !ok {
			return nil, fmt.Errorf("arguments must be int")
		}
		ints[i] = n
	}
	switch len(args) {
	case 1:
		stop = ints[0]
	case 2:
		start, stop = ints[0], ints[1]
	case 3:
		start, stop, step = ints[0], ints[1], ints[2]
		if step == 0 {
			return nil, fmt.Errorf("step must not be zero")
		}
	default:
		return nil, fmt.Errorf("expects 1 to 3 arguments, got %d", len(args))
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func builtinList(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expects at most 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case []any:
		return append([]any{}, v...), nil
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		out := make([]any, 0, len(v))
		for k := range v {
			out = append(out, k)
		}
		sortValues(out)
		return out, nil
	}
	return nil, fmt.Errorf("%s is not iterable", typeName(args[0]))
}

func builtinDict(args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expects at most 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case []any:
		out := make(map[string]any, len(v))
		for _, item := range v {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("expects a list of key/value pairs")
			}
			out[Str(pair[0])] = pair[1]
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %s", typeName(args[0]))
}

// builtinSet deduplicates into an ordered list; there is no distinct
// set type in this dialect.
func builtinSet(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expects at most 1 argument, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		if s, sok := args[0].(string); sok {
			chars, _ := builtinList([]any{s})
			seq = chars.([]any)
		} else {
			return nil, fmt.Errorf("%s is not iterable", typeName(args[0]))
		}
	}
	var out []any
	for _, v := range seq {
		dup := false
		for _, existing := range out {
			if equalValues(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func builtinAny(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("expects a list")
	}
	for _, v := range seq {
		if Truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func builtinAll(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("expects a list")
	}
	for _, v := range seq {
		if !Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// Str renders a value the way response templates expect: JSON-style
// scalars (true/false/null), compact numbers, strings verbatim.
func Str(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + Repr(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Repr is Str with strings quoted, used inside container rendering.
func Repr(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Str(v)
}

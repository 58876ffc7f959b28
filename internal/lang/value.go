package lang

import (
	"fmt"
	"strconv"
)

// EvalError is a runtime or syntax failure inside evaluated code. TypeName
// mirrors the original implementation's exception class names
// (PermissionError, TypeError, NameError, ...) so that the executor's
// state:exception{error:"<TypeName>: <message>"} event (spec.md §4.5 step
// 5) needs no separate mapping table.
type EvalError struct {
	TypeName string
	Message  string
}

func (e *EvalError) Error() string { return fmt.Sprintf("%s: %s", e.TypeName, e.Message) }

// ErrInterrupted is returned by Eval when the caller's context is canceled
// mid-evaluation (spec.md §5 "Cancellation").
var ErrInterrupted = &EvalError{TypeName: "KeyboardInterrupt", Message: "execution interrupted"}

// Stringify renders a value the way the executor writes it to captured
// standard output (spec.md §4.5 step 4).
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		out := "["
		for i, e := range x {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprintf("%q", Stringify(e))
		}
		return out + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asNumber(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// stringsOf converts a list value into a []string argv. A non-list value,
// or a list with any element that is not a string, yields ok=false.
func stringsOf(v any) ([]string, bool) {
	list, ok := asList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := asString(e)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

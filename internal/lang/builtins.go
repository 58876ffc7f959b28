package lang

import (
	"fmt"
	"io"

	"github.com/momentics/sandboxworker/intercept"
)

// Builtin is a function value callable from evaluated code.
type Builtin func(args []any) (any, error)

// builtinSet is the fixed set of resource-acquiring and I/O builtins
// wired to a Guard (spec.md §9 "In-process interception"). Nothing else
// in this language can reach a file, process, or socket.
func builtinSet(g *intercept.Guard, ctx *Context, out io.Writer) map[string]Builtin {
	return map[string]Builtin{
		"print": func(args []any) (any, error) {
			for i, a := range args {
				if i > 0 {
					fmt.Fprint(out, " ")
				}
				fmt.Fprint(out, Stringify(a))
			}
			fmt.Fprintln(out)
			return nil, nil
		},
		"open": func(args []any) (any, error) {
			path, mode, err := openArgs(args)
			if err != nil {
				return nil, err
			}
			f, err := g.Open(path, mode)
			if err != nil {
				return nil, toEvalError(err)
			}
			return float64(ctx.registerFile(f)), nil
		},
		"read": func(args []any) (any, error) {
			h, err := handleArg(args, "read")
			if err != nil {
				return nil, err
			}
			f, ok := ctx.file(h)
			if !ok {
				return nil, &EvalError{TypeName: "ValueError", Message: "read of unknown file handle"}
			}
			data, err := io.ReadAll(f)
			if err != nil {
				return nil, &EvalError{TypeName: "OSError", Message: err.Error()}
			}
			return string(data), nil
		},
		"write": func(args []any) (any, error) {
			if len(args) != 2 {
				return nil, &EvalError{TypeName: "TypeError", Message: "write(handle, text) takes 2 arguments"}
			}
			h, err := handleArg(args[:1], "write")
			if err != nil {
				return nil, err
			}
			text, ok := asString(args[1])
			if !ok {
				return nil, &EvalError{TypeName: "TypeError", Message: "write: second argument must be a string"}
			}
			f, ok := ctx.file(h)
			if !ok {
				return nil, &EvalError{TypeName: "ValueError", Message: "write to unknown file handle"}
			}
			n, err := f.WriteString(text)
			if err != nil {
				return nil, &EvalError{TypeName: "OSError", Message: err.Error()}
			}
			return float64(n), nil
		},
		"close": func(args []any) (any, error) {
			h, err := handleArg(args, "close")
			if err != nil {
				return nil, err
			}
			if err := ctx.closeFile(h); err != nil {
				return nil, toEvalError(err)
			}
			return nil, nil
		},
		"listdir": func(args []any) (any, error) {
			path := "."
			if len(args) == 1 {
				p, ok := asString(args[0])
				if !ok {
					return nil, &EvalError{TypeName: "TypeError", Message: "listdir: argument must be a string"}
				}
				path = p
			}
			entries, err := g.ListDir(path)
			if err != nil {
				return nil, toEvalError(err)
			}
			out := make([]any, 0, len(entries))
			for _, e := range entries {
				out = append(out, e.Name())
			}
			return out, nil
		},
		"run": func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, &EvalError{TypeName: "TypeError", Message: "run(argv) takes 1 argument"}
			}
			var (
				output []byte
				err    error
			)
			if argv, ok := stringsOf(args[0]); ok {
				output, err = g.Run(argv)
			} else if line, ok := asString(args[0]); ok {
				output, err = g.RunLine(line)
			} else {
				return nil, &EvalError{TypeName: "TypeError", Message: "run: argument must be a list or string"}
			}
			if err != nil {
				return nil, toEvalError(err)
			}
			return string(output), nil
		},
		"connect": func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, &EvalError{TypeName: "TypeError", Message: "connect(hostport) takes 1 argument"}
			}
			hostport, ok := asString(args[0])
			if !ok {
				return nil, &EvalError{TypeName: "TypeError", Message: "connect: argument must be a string"}
			}
			conn, err := g.Connect(hostport)
			if err != nil {
				return nil, toEvalError(err)
			}
			_ = conn.Close() // the language has no live socket value type; connect is probed for effect
			return nil, nil
		},
	}
}

func openArgs(args []any) (path, mode string, err error) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", &EvalError{TypeName: "TypeError", Message: "open(path, mode='r') takes 1 or 2 arguments"}
	}
	p, ok := asString(args[0])
	if !ok {
		return "", "", &EvalError{TypeName: "TypeError", Message: "open: path must be a string"}
	}
	mode = "r"
	if len(args) == 2 {
		m, ok := asString(args[1])
		if !ok {
			return "", "", &EvalError{TypeName: "TypeError", Message: "open: mode must be a string"}
		}
		mode = m
	}
	return p, mode, nil
}

func handleArg(args []any, op string) (int, error) {
	if len(args) != 1 {
		return 0, &EvalError{TypeName: "TypeError", Message: fmt.Sprintf("%s(handle) takes 1 argument", op)}
	}
	n, ok := asNumber(args[0])
	if !ok {
		return 0, &EvalError{TypeName: "TypeError", Message: op + ": argument must be a file handle"}
	}
	return int(n), nil
}

// toEvalError classifies an error from intercept/os into the TypeName an
// evaluated-code observer expects (spec.md §4.5 "Denial semantics",
// scenario 2/3/6: "PermissionError: ...").
func toEvalError(err error) *EvalError {
	if ee, ok := err.(*EvalError); ok {
		return ee
	}
	if pe, ok := err.(*intercept.PermissionError); ok {
		return &EvalError{TypeName: "PermissionError", Message: pe.Error()}
	}
	return &EvalError{TypeName: "OSError", Message: err.Error()}
}

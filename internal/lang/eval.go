package lang

import (
	"context"
	"fmt"
	"io"

	"github.com/momentics/sandboxworker/intercept"
)

// Evaluator runs frames of source text against one persistent Context. It
// is the "interpreter-embedding seam" spec.md §9 describes: resource
// acquisition is routed exclusively through the Builtin functions bound to
// guard, which the executor swaps in once at construction.
type Evaluator struct {
	ctx      *Context
	guard    *intercept.Guard
	builtins map[string]Builtin
}

// NewEvaluator returns an Evaluator with a fresh persistent Context.
func NewEvaluator(guard *intercept.Guard, out io.Writer) *Evaluator {
	ctx := NewContext()
	return &Evaluator{
		ctx:      ctx,
		guard:    guard,
		builtins: builtinSet(guard, ctx, out),
	}
}

// SetOutput rebinds the builtins' standard-output target, and the guard's
// warn-decision audit sink, for the frame about to run (spec.md §4.5 step 2
// "Swap in the output-capture sink").
func (ev *Evaluator) SetOutput(out io.Writer) {
	ev.builtins = builtinSet(ev.guard, ev.ctx, out)
	if ev.guard != nil {
		ev.guard.SetAuditSink(out)
	}
}

// Result is the outcome of evaluating one frame.
type Result struct {
	// Value is the expression's value when the frame was evaluated as a
	// single expression and it produced a non-nil result.
	Value   any
	HasValue bool
}

// Eval runs source against the persistent context (spec.md §4.5 step 4).
// It first attempts to parse source as a single expression; if that
// succeeds the expression is evaluated and, if its value is non-nil,
// returned for the executor to print. If source does not parse as a
// single expression, it is parsed and evaluated as a statement sequence
// instead. A cancellation of goCtx between statements surfaces as
// ErrInterrupted (spec.md §5 "Cancellation").
func (ev *Evaluator) Eval(goCtx context.Context, source string) (Result, error) {
	toks, err := NewLexer(source).Tokenize()
	if err != nil {
		return Result{}, err
	}

	if exprProg, ok := tryParseExpr(toks); ok {
		v, err := ev.evalExpr(goCtx, exprProg)
		if err != nil {
			return Result{}, err
		}
		if v == nil {
			return Result{}, nil
		}
		return Result{Value: v, HasValue: true}, nil
	}

	prog, err := NewParser(toks).ParseProgram()
	if err != nil {
		return Result{}, err
	}
	for _, stmt := range prog.Stmts {
		select {
		case <-goCtx.Done():
			return Result{}, ErrInterrupted
		default:
		}
		if err := ev.evalStmt(goCtx, stmt); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

// tryParseExpr attempts to consume the whole token stream as one
// expression, returning ok=false on any parse error so the caller falls
// back to statement-form parsing without surfacing a spurious syntax
// error for ordinary multi-statement frames.
func tryParseExpr(toks []Token) (Expr, bool) {
	e, err := NewParser(toks).ParseExpr()
	if err != nil {
		return nil, false
	}
	return e, true
}

func (ev *Evaluator) evalStmt(goCtx context.Context, s Stmt) error {
	switch st := s.(type) {
	case AssignStmt:
		v, err := ev.evalExpr(goCtx, st.Value)
		if err != nil {
			return err
		}
		ev.ctx.Set(st.Name, v)
		return nil
	case ExprStmt:
		_, err := ev.evalExpr(goCtx, st.Value)
		return err
	default:
		return &EvalError{TypeName: "SyntaxError", Message: "unknown statement form"}
	}
}

func (ev *Evaluator) evalExpr(goCtx context.Context, e Expr) (any, error) {
	select {
	case <-goCtx.Done():
		return nil, ErrInterrupted
	default:
	}
	switch x := e.(type) {
	case NumberLit:
		return x.Value, nil
	case StringLit:
		return x.Value, nil
	case BoolLit:
		return x.Value, nil
	case NoneLit:
		return nil, nil
	case ListLit:
		out := make([]any, 0, len(x.Elems))
		for _, el := range x.Elems {
			v, err := ev.evalExpr(goCtx, el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case Ident:
		if v, ok := ev.ctx.Get(x.Name); ok {
			return v, nil
		}
		return nil, &EvalError{TypeName: "NameError", Message: fmt.Sprintf("name %q is not defined", x.Name)}
	case BinaryExpr:
		return ev.evalBinary(goCtx, x)
	case CallExpr:
		return ev.evalCall(goCtx, x)
	default:
		return nil, &EvalError{TypeName: "SyntaxError", Message: "unknown expression form"}
	}
}

func (ev *Evaluator) evalBinary(goCtx context.Context, b BinaryExpr) (any, error) {
	left, err := ev.evalExpr(goCtx, b.Left)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalExpr(goCtx, b.Right)
	if err != nil {
		return nil, err
	}

	if b.Op == TokPlus {
		if ls, ok := asString(left); ok {
			if rs, ok := asString(right); ok {
				return ls + rs, nil
			}
		}
	}

	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	switch b.Op {
	case TokEq:
		return left == right, nil
	case TokNeq:
		return left != right, nil
	}
	if !lok || !rok {
		return nil, &EvalError{TypeName: "TypeError", Message: "unsupported operand types for arithmetic"}
	}
	switch b.Op {
	case TokPlus:
		return ln + rn, nil
	case TokMinus:
		return ln - rn, nil
	case TokStar:
		return ln * rn, nil
	case TokSlash:
		if rn == 0 {
			return nil, &EvalError{TypeName: "ZeroDivisionError", Message: "division by zero"}
		}
		return ln / rn, nil
	case TokLt:
		return ln < rn, nil
	case TokGt:
		return ln > rn, nil
	default:
		return nil, &EvalError{TypeName: "SyntaxError", Message: "unknown operator"}
	}
}

func (ev *Evaluator) evalCall(goCtx context.Context, c CallExpr) (any, error) {
	ident, ok := c.Callee.(Ident)
	if !ok {
		return nil, &EvalError{TypeName: "TypeError", Message: "callee is not callable"}
	}
	fn, ok := ev.builtins[ident.Name]
	if !ok {
		return nil, &EvalError{TypeName: "NameError", Message: fmt.Sprintf("name %q is not defined", ident.Name)}
	}
	args := make([]any, 0, len(c.Args))
	for _, a := range c.Args {
		v, err := ev.evalExpr(goCtx, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return fn(args)
}

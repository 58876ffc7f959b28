// Package lang implements the small, embedded scripting language evaluated
// execution code runs under (spec.md §4.5, §9 "In-process interception").
// It is the capability-API seam: the only way evaluated code can open a
// file, list a directory, launch a subprocess, or connect outbound is
// through the builtin functions wired to intercept.Guard in builtins.go —
// there is no host-language global to monkey-patch, so the language itself
// is built small enough that its only resource-acquiring primitives are
// those builtins.
//
// Grounded on the teacher's layered-parser discipline in
// core/protocol/frame_codec.go (lex, then a small recursive-descent parse,
// then a separate evaluation pass) generalized from wire bytes to source
// text; no interpreter or parser-combinator library appears anywhere in
// the example pack, so the lexer/parser/evaluator below are hand-written
// against go/scanner-style conventions rather than an ecosystem dependency
// (see DESIGN.md).
package lang

import "fmt"

// TokenKind identifies a lexical token kind.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNewline
	TokIdent
	TokString
	TokNumber
	TokAssign
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokEq
	TokNeq
	TokLt
	TokGt
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokComma
	TokTrue
	TokFalse
	TokNone
)

// Token is one lexical unit.
type Token struct {
	Kind TokenKind
	Text string
	Num  float64
	Pos  int
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)", t.Kind, t.Text)
}

var keywords = map[string]TokenKind{
	"true":  TokTrue,
	"false": TokFalse,
	"none":  TokNone,
	"None":  TokNone,
	"True":  TokTrue,
	"False": TokFalse,
}

// Lexer converts source text into a flat token stream.
type Lexer struct {
	src []rune
	pos int
}

// NewLexer returns a Lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

// Tokenize lexes the whole source into a slice terminated by a TokEOF
// token. A lexical error (unterminated string, stray character) is
// reported as an *EvalError with TypeName "SyntaxError".
func (l *Lexer) Tokenize() ([]Token, error) {
	var toks []Token
	for {
		l.skipSpacesAndComments()
		start := l.pos
		c := l.peek()
		switch {
		case c == 0:
			toks = append(toks, Token{Kind: TokEOF, Pos: start})
			return toks, nil
		case c == '\n' || c == ';':
			l.pos++
			toks = append(toks, Token{Kind: TokNewline, Pos: start})
		case c == '(':
			l.pos++
			toks = append(toks, Token{Kind: TokLParen, Pos: start})
		case c == ')':
			l.pos++
			toks = append(toks, Token{Kind: TokRParen, Pos: start})
		case c == '[':
			l.pos++
			toks = append(toks, Token{Kind: TokLBracket, Pos: start})
		case c == ']':
			l.pos++
			toks = append(toks, Token{Kind: TokRBracket, Pos: start})
		case c == ',':
			l.pos++
			toks = append(toks, Token{Kind: TokComma, Pos: start})
		case c == '+':
			l.pos++
			toks = append(toks, Token{Kind: TokPlus, Pos: start})
		case c == '-':
			l.pos++
			toks = append(toks, Token{Kind: TokMinus, Pos: start})
		case c == '*':
			l.pos++
			toks = append(toks, Token{Kind: TokStar, Pos: start})
		case c == '/':
			l.pos++
			toks = append(toks, Token{Kind: TokSlash, Pos: start})
		case c == '<':
			l.pos++
			toks = append(toks, Token{Kind: TokLt, Pos: start})
		case c == '>':
			l.pos++
			toks = append(toks, Token{Kind: TokGt, Pos: start})
		case c == '=' && l.peekAt(1) == '=':
			l.pos += 2
			toks = append(toks, Token{Kind: TokEq, Pos: start})
		case c == '!' && l.peekAt(1) == '=':
			l.pos += 2
			toks = append(toks, Token{Kind: TokNeq, Pos: start})
		case c == '=':
			l.pos++
			toks = append(toks, Token{Kind: TokAssign, Pos: start})
		case c == '"' || c == '\'':
			s, err := l.lexString(c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokString, Text: s, Pos: start})
		case c >= '0' && c <= '9':
			n, text := l.lexNumber()
			toks = append(toks, Token{Kind: TokNumber, Num: n, Text: text, Pos: start})
		case isIdentStart(c):
			text := l.lexIdent()
			if kw, ok := keywords[text]; ok {
				toks = append(toks, Token{Kind: kw, Text: text, Pos: start})
			} else {
				toks = append(toks, Token{Kind: TokIdent, Text: text, Pos: start})
			}
		default:
			return nil, &EvalError{TypeName: "SyntaxError", Message: fmt.Sprintf("unexpected character %q at offset %d", c, start)}
		}
	}
}

func (l *Lexer) skipSpacesAndComments() {
	for {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' {
			l.pos++
			continue
		}
		if c == '#' {
			for l.peek() != '\n' && l.peek() != 0 {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *Lexer) lexString(quote rune) (string, error) {
	l.pos++ // consume opening quote
	var out []rune
	for {
		c := l.peek()
		if c == 0 {
			return "", &EvalError{TypeName: "SyntaxError", Message: "unterminated string literal"}
		}
		if c == quote {
			l.pos++
			return string(out), nil
		}
		if c == '\\' {
			l.pos++
			switch l.peek() {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, l.peek())
			}
			l.pos++
			continue
		}
		out = append(out, c)
		l.pos++
	}
}

func (l *Lexer) lexNumber() (float64, string) {
	start := l.pos
	for isDigit(l.peek()) {
		l.pos++
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.pos++
		for isDigit(l.peek()) {
			l.pos++
		}
	}
	text := string(l.src[start:l.pos])
	var n float64
	fmt.Sscanf(text, "%g", &n)
	return n, text
}

func (l *Lexer) lexIdent() string {
	start := l.pos
	for isIdentPart(l.peek()) {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func isDigit(c rune) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c rune) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c rune) bool  { return isIdentStart(c) || isDigit(c) }

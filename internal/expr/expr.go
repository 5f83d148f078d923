// Package expr evaluates the small formula language used by
// Transformation_FileToBronze expressions. An expression runs once per row
// with the row's pre-rename field values and a clock fixed at the start of
// the transform call.
//
// Grammar:
//
//	expr   := term (("+" | "-" | "&") term)*
//	term   := factor (("*" | "/") factor)*
//	factor := number | 'string' | [Field Name] | func "(" args ")" | "(" expr ")" | "-" factor
//
// "&" concatenates; "+", "-", "*", "/" are numeric. Functions: upper, lower,
// trim, len, replace, substr, concat, abs, round, now.
//
// Expressions come from the per-source configuration tables, which are
// operator-owned; they are trusted declarative configuration, not user
// input. The evaluator still refuses anything outside this grammar, so
// configuration can never escalate to arbitrary code execution.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the format now() renders, matching the audit log and
// IngestDatetime stamps.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Env supplies the per-row bindings available to an expression.
type Env struct {
	// Fields maps pre-rename column names to the row's raw values.
	Fields map[string]string
	// Now is the ingestion timestamp constant, computed once per transform.
	Now time.Time
}

// Expr is a compiled expression, reusable across rows.
type Expr struct {
	src  string
	root node
}

// Compile parses src into a reusable expression.
func Compile(src string) (*Expr, error) {
	p := &parser{lexer: lexer{input: src}}
	p.next()
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("compile %q: unexpected %q", src, p.tok.text)
	}
	return &Expr{src: src, root: root}, nil
}

// Eval runs the expression for one row and renders the result as a string.
func (e *Expr) Eval(env Env) (string, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", e.src, err)
	}
	return v.text(), nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// value is the dynamic result type: every value carries its text form and,
// when it parses, a numeric form.
type value struct {
	s     string
	f     float64
	isNum bool
}

func stringValue(s string) value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && strings.TrimSpace(s) != "" {
		return value{s: s, f: f, isNum: true}
	}
	return value{s: s}
}

func numberValue(f float64) value {
	return value{s: strconv.FormatFloat(f, 'f', -1, 64), f: f, isNum: true}
}

func (v value) text() string { return v.s }

func (v value) number() (float64, error) {
	if !v.isNum {
		return 0, fmt.Errorf("value %q is not numeric", v.s)
	}
	return v.f, nil
}

type node interface {
	eval(Env) (value, error)
}

type literalNode struct{ v value }

func (n literalNode) eval(Env) (value, error) { return n.v, nil }

type fieldNode struct{ name string }

func (n fieldNode) eval(env Env) (value, error) {
	raw, ok := env.Fields[n.name]
	if !ok {
		return value{}, fmt.Errorf("unknown field [%s]", n.name)
	}
	return stringValue(raw), nil
}

type binaryNode struct {
	op          rune
	left, right node
}

func (n binaryNode) eval(env Env) (value, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}
	if n.op == '&' {
		return stringValue(left.text() + right.text()), nil
	}
	lf, err := left.number()
	if err != nil {
		return value{}, err
	}
	rf, err := right.number()
	if err != nil {
		return value{}, err
	}
	switch n.op {
	case '+':
		return numberValue(lf + rf), nil
	case '-':
		return numberValue(lf - rf), nil
	case '*':
		return numberValue(lf * rf), nil
	case '/':
		if rf == 0 {
			return value{}, fmt.Errorf("division by zero")
		}
		return numberValue(lf / rf), nil
	}
	return value{}, fmt.Errorf("unknown operator %q", n.op)
}

type negateNode struct{ operand node }

func (n negateNode) eval(env Env) (value, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return value{}, err
	}
	f, err := v.number()
	if err != nil {
		return value{}, err
	}
	return numberValue(-f), nil
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(env Env) (value, error) {
	args := make([]value, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return value{}, err
		}
		args[i] = v
	}
	return applyFunc(n.name, args, env)
}

func applyFunc(name string, args []value, env Env) (value, error) {
	switch name {
	case "now":
		if len(args) != 0 {
			return value{}, fmt.Errorf("now takes no arguments")
		}
		return stringValue(env.Now.Format(TimestampLayout)), nil
	case "upper":
		if len(args) != 1 {
			return value{}, fmt.Errorf("upper takes one argument")
		}
		return stringValue(strings.ToUpper(args[0].text())), nil
	case "lower":
		if len(args) != 1 {
			return value{}, fmt.Errorf("lower takes one argument")
		}
		return stringValue(strings.ToLower(args[0].text())), nil
	case "trim":
		if len(args) != 1 {
			return value{}, fmt.Errorf("trim takes one argument")
		}
		return stringValue(strings.TrimSpace(args[0].text())), nil
	case "len":
		if len(args) != 1 {
			return value{}, fmt.Errorf("len takes one argument")
		}
		return numberValue(float64(len([]rune(args[0].text())))), nil
	case "concat":
		var sb strings.Builder
		for _, arg := range args {
			sb.WriteString(arg.text())
		}
		return stringValue(sb.String()), nil
	case "replace":
		if len(args) != 3 {
			return value{}, fmt.Errorf("replace takes three arguments")
		}
		return stringValue(strings.ReplaceAll(args[0].text(), args[1].text(), args[2].text())), nil
	case "substr":
		if len(args) != 3 {
			return value{}, fmt.Errorf("substr takes three arguments")
		}
		runes := []rune(args[0].text())
		start, err := args[1].number()
		if err != nil {
			return value{}, err
		}
		length, err := args[2].number()
		if err != nil {
			return value{}, err
		}
		from := int(start)
		count := int(length)
		if from < 0 || count < 0 || from > len(runes) {
			return value{}, fmt.Errorf("substr out of range: start %d, length %d", from, count)
		}
		end := from + count
		if end > len(runes) {
			end = len(runes)
		}
		return stringValue(string(runes[from:end])), nil
	case "abs":
		if len(args) != 1 {
			return value{}, fmt.Errorf("abs takes one argument")
		}
		f, err := args[0].number()
		if err != nil {
			return value{}, err
		}
		return numberValue(math.Abs(f)), nil
	case "round":
		if len(args) != 2 {
			return value{}, fmt.Errorf("round takes two arguments")
		}
		f, err := args[0].number()
		if err != nil {
			return value{}, err
		}
		digits, err := args[1].number()
		if err != nil {
			return value{}, err
		}
		scale := math.Pow(10, digits)
		return numberValue(math.Round(f*scale) / scale), nil
	}
	return value{}, fmt.Errorf("unknown function %q", name)
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokField
	tokIdent
	tokOp     // + - * / &
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) lex() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}
	c := l.input[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case c == '+' || c == '-' || c == '*' || c == '/' || c == '&':
		l.pos++
		return token{kind: tokOp, text: string(c)}, nil
	case c == '[':
		end := strings.IndexByte(l.input[l.pos:], ']')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated field reference")
		}
		name := l.input[l.pos+1 : l.pos+end]
		l.pos += end + 1
		return token{kind: tokField, text: name}, nil
	case c == '\'':
		rest := l.input[l.pos+1:]
		end := strings.IndexByte(rest, '\'')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated string literal")
		}
		text := rest[:end]
		l.pos += end + 2
		return token{kind: tokString, text: text}, nil
	case c >= '0' && c <= '9' || c == '.':
		start := l.pos
		for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.input[start:l.pos]}, nil
	case unicode.IsLetter(rune(c)) || c == '_':
		start := l.pos
		for l.pos < len(l.input) {
			r := rune(l.input[l.pos])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				break
			}
			l.pos++
		}
		return token{kind: tokIdent, text: strings.ToLower(l.input[start:l.pos])}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q", c)
}

// --- parser ---

type parser struct {
	lexer lexer
	tok   token
	err   error
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	p.tok, p.err = p.lexer.lex()
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.err == nil && p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-" || p.tok.text == "&") {
		op := rune(p.tok.text[0])
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, p.err
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.err == nil && p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := rune(p.tok.text[0])
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, p.err
}

func (p *parser) parseFactor() (node, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p.tok.text)
		}
		p.next()
		return literalNode{v: numberValue(f)}, nil
	case tokString:
		n := literalNode{v: stringValue(p.tok.text)}
		p.next()
		return n, nil
	case tokField:
		n := fieldNode{name: p.tok.text}
		p.next()
		return n, nil
	case tokIdent:
		name := p.tok.text
		p.next()
		if p.tok.kind != tokLParen {
			return nil, fmt.Errorf("expected ( after %q", name)
		}
		p.next()
		var args []node
		if p.tok.kind != tokRParen {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.tok.kind != tokComma {
					break
				}
				p.next()
			}
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("expected ) to close %q call", name)
		}
		p.next()
		return callNode{name: name, args: args}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("expected )")
		}
		p.next()
		return inner, nil
	case tokOp:
		if p.tok.text == "-" {
			p.next()
			operand, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return negateNode{operand: operand}, nil
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return nil, fmt.Errorf("unexpected token %q", p.tok.text)
}

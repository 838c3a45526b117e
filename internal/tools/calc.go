package tools

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sentience/sentience/internal/core"
)

// Evaluate computes an arithmetic expression built only from numeric
// literals, + - * / %, unary signs and parentheses. Any other token is
// rejected; nothing is ever executed.
func Evaluate(expr string) (float64, error) {
	p := &calcParser{src: expr}
	p.next()

	v, err := p.expression()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, p.errorf("unexpected %q", p.tok.text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not finite", core.ErrInvalidExpression)
	}
	return v, nil
}

// FormatNumber renders a result without trailing zeros or exponent noise
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
	tokLParen
	tokRParen
	tokBad
)

type token struct {
	kind tokKind
	text string
	num  float64
}

type calcParser struct {
	src   string
	pos   int
	tok   token
	depth int
}

const maxNesting = 64

func (p *calcParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidExpression, fmt.Sprintf(format, args...))
}

func (p *calcParser) next() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}

	c := p.src[p.pos]
	switch {
	case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
		p.tok = token{kind: tokOp, text: string(c)}
		p.pos++
	case c == '(':
		p.tok = token{kind: tokLParen, text: "("}
		p.pos++
	case c == ')':
		p.tok = token{kind: tokRParen, text: ")"}
		p.pos++
	case (c >= '0' && c <= '9') || c == '.':
		start := p.pos
		for p.pos < len(p.src) && ((p.src[p.pos] >= '0' && p.src[p.pos] <= '9') || p.src[p.pos] == '.') {
			p.pos++
		}
		text := p.src[start:p.pos]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{kind: tokBad, text: text}
			return
		}
		p.tok = token{kind: tokNum, text: text, num: n}
	default:
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ' ' {
			p.pos++
		}
		p.tok = token{kind: tokBad, text: p.src[start:p.pos]}
	}
}

// expression := term (('+' | '-') term)*
func (p *calcParser) expression() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

// term := unary (('*' | '/' | '%') unary)*
func (p *calcParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, p.errorf("division by zero")
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, p.errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
	return left, nil
}

// unary := ('+' | '-') unary | primary
func (p *calcParser) unary() (float64, error) {
	if p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		neg := p.tok.text == "-"
		p.next()
		if err := p.enter(); err != nil {
			return 0, err
		}
		v, err := p.unary()
		p.depth--
		if err != nil {
			return 0, err
		}
		if neg {
			return -v, nil
		}
		return v, nil
	}
	return p.primary()
}

// primary := number | '(' expression ')'
func (p *calcParser) primary() (float64, error) {
	switch p.tok.kind {
	case tokNum:
		v := p.tok.num
		p.next()
		return v, nil
	case tokLParen:
		if err := p.enter(); err != nil {
			return 0, err
		}
		p.next()
		v, err := p.expression()
		if err != nil {
			return 0, err
		}
		if p.tok.kind != tokRParen {
			return 0, p.errorf("missing closing parenthesis")
		}
		p.depth--
		p.next()
		return v, nil
	case tokEOF:
		return 0, p.errorf("unexpected end of expression")
	default:
		return 0, p.errorf("unexpected %q", p.tok.text)
	}
}

func (p *calcParser) enter() error {
	p.depth++
	if p.depth > maxNesting {
		return p.errorf("expression nested too deeply")
	}
	return nil
}

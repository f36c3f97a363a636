package badge

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/babysteps/progression/internal/domain"
)

// Expr is a compiled rule condition.
type Expr interface {
	Eval(s *domain.ProgressionState) bool
	String() string
}

type operand interface {
	value(s *domain.ProgressionState) int64
	String() string
}

type literal int64

func (l literal) value(*domain.ProgressionState) int64 { return int64(l) }
func (l literal) String() string                      { return strconv.FormatInt(int64(l), 10) }

type field struct {
	name string
	get  func(s *domain.ProgressionState) int64
}

func (f field) value(s *domain.ProgressionState) int64 { return f.get(s) }
func (f field) String() string                        { return f.name }

type comparison struct {
	op          string
	left, right operand
}

func (c comparison) Eval(s *domain.ProgressionState) bool {
	l, r := c.left.value(s), c.right.value(s)
	switch c.op {
	case ">=":
		return l >= r
	case ">":
		return l > r
	case "<=":
		return l <= r
	case "<":
		return l < r
	case "==":
		return l == r
	case "!=":
		return l != r
	}
	return false
}

func (c comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.op, c.right)
}

type and struct{ left, right Expr }

func (a and) Eval(s *domain.ProgressionState) bool { return a.left.Eval(s) && a.right.Eval(s) }
func (a and) String() string                      { return fmt.Sprintf("(%s AND %s)", a.left, a.right) }

type or struct{ left, right Expr }

func (o or) Eval(s *domain.ProgressionState) bool { return o.left.Eval(s) || o.right.Eval(s) }
func (o or) String() string                      { return fmt.Sprintf("(%s OR %s)", o.left, o.right) }

type not struct{ inner Expr }

func (n not) Eval(s *domain.ProgressionState) bool { return !n.inner.Eval(s) }
func (n not) String() string                      { return fmt.Sprintf("NOT %s", n.inner) }

// fields is the whitelist of names a condition may reference.
var fields = map[string]func(s *domain.ProgressionState) int64{
	"balance":         func(s *domain.ProgressionState) int64 { return s.Balance },
	"level":           func(s *domain.ProgressionState) int64 { return int64(s.Level) },
	"totalactivities": func(s *domain.ProgressionState) int64 { return int64(s.TotalActivities) },
	"totalmemories":   func(s *domain.ProgressionState) int64 { return int64(s.TotalMemories) },
	"totalmilestones": func(s *domain.ProgressionState) int64 { return int64(s.TotalMilestones) },
	"totallogins":     func(s *domain.ProgressionState) int64 { return int64(s.TotalLogins) },
	"badgecount":      func(s *domain.ProgressionState) int64 { return int64(len(s.Badges)) },
}

func init() {
	for _, c := range domain.StreakCategories {
		cat := c
		fields["streaks."+string(cat)] = func(s *domain.ProgressionState) int64 { return int64(s.Streaks[cat]) }
		fields["longeststreaks."+string(cat)] = func(s *domain.ProgressionState) int64 { return int64(s.LongestStreaks[cat]) }
	}
}

// lookupField resolves a field name. Matching ignores case and underscores so
// "total_memories" and "totalMemories" name the same field.
func lookupField(name string) (operand, bool) {
	norm := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	get, ok := fields[norm]
	if !ok {
		return nil, false
	}
	return field{name: name, get: get}, true
}

// Token kinds.
const (
	tokEOF = iota
	tokIdent
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind int
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != src[i] {
				return nil, fmt.Errorf("unexpected %q at %d", c, i)
			}
			kind := tokAnd
			if c == '|' {
				kind = tokOr
			}
			toks = append(toks, token{kind, src[i : i+2], i})
			i += 2
		case c == '>' || c == '<' || c == '=' || c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, src[i : i+2], i})
				i += 2
				continue
			}
			switch c {
			case '>', '<':
				toks = append(toks, token{tokOp, string(c), i})
			case '!':
				toks = append(toks, token{tokNot, "!", i})
			default:
				return nil, fmt.Errorf("unexpected '=' at %d", i)
			}
			i++
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			start := i
			i++
			for i < len(src) && unicode.IsDigit(rune(src[i])) {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_' || src[i] == '.') {
				i++
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{tokAnd, word, start})
			case "OR":
				toks = append(toks, token{tokOr, word, start})
			case "NOT":
				toks = append(toks, token{tokNot, word, start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("unexpected %q at %d", c, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

// maxDepth bounds nesting so a hostile condition cannot exhaust the stack.
const maxDepth = 32

type parser struct {
	toks  []token
	pos   int
	depth int
}

// Parse compiles a condition string into an Expr.
//
//	expr       = or
//	or         = and { ("OR" | "||") and }
//	and        = unary { ("AND" | "&&") unary }
//	unary      = ("NOT" | "!") unary | "(" expr ")" | comparison
//	comparison = operand ( ">=" | ">" | "<=" | "<" | "==" | "!=" ) operand
//	operand    = field | integer
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty condition")
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = or{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = and{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("condition nested too deeply")
	}

	switch t := p.peek(); t.kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{inner}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at %d", closing.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op := p.next()
	if op.kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator at %d", op.pos)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return comparison{op: op.text, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at %d", t.text, t.pos)
		}
		return literal(n), nil
	case tokIdent:
		f, ok := lookupField(t.text)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", t.text)
		}
		return f, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of condition")
	}
	return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}

// Package calc implements a safe arithmetic evaluator tool. Expressions
// are parsed with a small recursive-descent parser; nothing is ever
// executed as code.
package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// maxExpressionLength bounds the input so a hostile expression cannot
// dominate the executor.
const maxExpressionLength = 4096

// Tool evaluates arithmetic expressions.
type Tool struct{}

// New creates the calculator tool.
func New() *Tool { return &Tool{} }

type calcInput struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression using + - * / % ^ and parentheses"`
}

type calcPayload struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
	Formatted  string  `json:"formatted"`
}

func (t *Tool) Name() string { return "calculate" }

func (t *Tool) Description() string {
	return "Evaluate an arithmetic expression. Supports + - * / % ^ and parentheses. Use for any numeric computation instead of computing in your head."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&calcInput{})
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in calcInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if len(in.Expression) > maxExpressionLength {
		return nil, fmt.Errorf("expression exceeds %d characters", maxExpressionLength)
	}

	result, err := Evaluate(in.Expression)
	if err != nil {
		return nil, err
	}

	return models.NewOutput(models.OutputCalculation, calcPayload{
		Expression: in.Expression,
		Result:     result,
		Formatted:  strconv.FormatFloat(result, 'f', -1, 64),
	}), nil
}

// Evaluate parses and computes an arithmetic expression.
//
// Grammar, lowest to highest precedence:
//
//	expr   = term  (('+' | '-') term)*
//	term   = unary (('*' | '/' | '%') unary)*
//	unary  = '-' unary | power
//	power  = primary ('^' unary)?
//	primary = number | '(' expr ')'
func Evaluate(expression string) (float64, error) {
	p := &parser{input: expression}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, fmt.Errorf("expression result is not a finite number")
	}
	return result, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.peek() == '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.peek() == '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.peek() == '^' {
		p.pos++
		// Right-associative: 2^3^2 = 2^(3^2).
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.peek() == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return v, nil
	}

	return p.parseNumber()
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if unicode.IsDigit(rune(c)) || c == '.' || c == ',' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}

	// Thousands separators are common in financial input.
	text := strings.NewReplacer(",", "", "_", "").Replace(p.input[start:p.pos])
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at position %d", p.input[start:p.pos], start)
	}
	return v, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

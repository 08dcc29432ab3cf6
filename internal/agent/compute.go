package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
)

// Computation evaluates arithmetic and boolean expressions.
type Computation struct {
	env map[string]any
}

// NewComputation creates the computation capability with a few math helpers.
func NewComputation() *Computation {
	return &Computation{env: map[string]any{
		"pi":    math.Pi,
		"e":     math.E,
		"sqrt":  math.Sqrt,
		"pow":   math.Pow,
		"log":   math.Log,
		"log10": math.Log10,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"floor": math.Floor,
		"ceil":  math.Ceil,
	}}
}

func (c *Computation) Kind() CapabilityKind { return KindComputation }

func (c *Computation) Description() string {
	return "useful for when you need to answer questions about math. Input is a single arithmetic or boolean expression"
}

func (c *Computation) InputSchema() string {
	return `{"type":"object","properties":{"expression":{"type":"string","description":"Expression to evaluate, e.g. (3 + 4) * sqrt(2)"}},"required":["expression"]}`
}

type computeInput struct {
	Expression string `json:"expression"`
}

func (c *Computation) Invoke(ctx context.Context, input string) (string, error) {
	var in computeInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("invalid computation input: %w", err)
	}
	return c.Eval(in.Expression)
}

// Eval compiles and runs one expression. Results that are neither numbers
// nor booleans are rejected.
func (c *Computation) Eval(expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "", fmt.Errorf("expression is required")
	}

	program, err := expr.Compile(expression, expr.Env(c.env))
	if err != nil {
		return "", fmt.Errorf("not an expression: %w", err)
	}
	out, err := expr.Run(program, c.env)
	if err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}

	switch v := out.(type) {
	case int:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("result is not a finite number")
		}
		return fmt.Sprintf("%g", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	}
	return "", fmt.Errorf("expression produced %T, want a number or boolean", out)
}

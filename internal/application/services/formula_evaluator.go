// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/triops/actioncore/internal/domain/models"
)

const (
	MaxFormulaLength   = 5000
	MaxFormulaInputLen = 10000
	maxReduceIterations = 50
)

// divByZeroSentinel is what ÷ yields on a zero divisor, per spec §4.5: "a
// well-defined sentinel; it does not throw".
const divByZeroSentinel = "#DIV/0"

var funcCall = regexp.MustCompile(`(?i)\b(concat|upper|lower|trim|trimall|capitalize|substring|replace|length|if|default|round|floor|ceil|abs)\(([^()]*)\)`)

// mulDivExpr and addSubExpr are tried in that order so × and ÷ always
// reduce before + and − (spec §4.5 precedence rule), regardless of their
// left-to-right position in the source.
var mulDivExpr = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([×÷])\s*(-?\d+(?:\.\d+)?)`)
var addSubExpr = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([+\-])\s*(-?\d+(?:\.\d+)?)`)

// FormulaEvaluator reduces the format-action DSL by innermost-first textual
// rewriting: placeholders substitute first, then function calls and
// arithmetic reduce to a fixed point (spec §4.5).
type FormulaEvaluator struct{}

func NewFormulaEvaluator() *FormulaEvaluator { return &FormulaEvaluator{} }

// Evaluate substitutes placeholders then reduces fn(...) calls and infix
// arithmetic innermost-first until no further reduction occurs or the
// iteration cap is hit, returning the final string plus, if the result
// parses as a number, its numeric form for the `result_number` output
// field.
func (e *FormulaEvaluator) Evaluate(formula string, object map[string]interface{}, inputs []interface{}) (string, *float64, error) {
	if len(formula) > MaxFormulaLength {
		return "", nil, models.ErrOversizeFormula
	}
	for _, in := range inputs {
		if s, ok := in.(string); ok && len(s) > MaxFormulaInputLen {
			return "", nil, models.ErrOversizeInput
		}
	}

	expr := SubstitutePlaceholders(formula, object, inputs)

	for i := 0; i < maxReduceIterations; i++ {
		reduced, changed := e.reduceOnce(expr)
		expr = reduced
		if !changed {
			break
		}
	}

	if n, err := strconv.ParseFloat(strings.TrimSpace(expr), 64); err == nil {
		return expr, &n, nil
	}
	return expr, nil, nil
}

// reduceOnce performs a single reduction: the first function call whose
// argument list contains no nested call, or if there is none the first
// multiply/divide expression, or else the first add/subtract expression,
// so that nested calls resolve from the inside out over successive passes.
func (e *FormulaEvaluator) reduceOnce(expr string) (string, bool) {
	if loc := funcCall.FindStringSubmatchIndex(expr); loc != nil {
		name := expr[loc[2]:loc[3]]
		argsRaw := expr[loc[4]:loc[5]]
		result := e.applyFunc(strings.ToLower(name), splitArgs(argsRaw))
		return expr[:loc[0]] + result + expr[loc[1]:], true
	}
	if loc := mulDivExpr.FindStringSubmatchIndex(expr); loc != nil {
		left := expr[loc[2]:loc[3]]
		op := expr[loc[4]:loc[5]]
		right := expr[loc[6]:loc[7]]
		result := e.applyArith(left, op, right)
		return expr[:loc[0]] + result + expr[loc[1]:], true
	}
	if loc := addSubExpr.FindStringSubmatchIndex(expr); loc != nil {
		left := expr[loc[2]:loc[3]]
		op := expr[loc[4]:loc[5]]
		right := expr[loc[6]:loc[7]]
		result := e.applyArith(left, op, right)
		return expr[:loc[0]] + result + expr[loc[1]:], true
	}
	return expr, false
}

func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(trimQuotes(p))
	}
	return parts
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func (e *FormulaEvaluator) applyFunc(name string, args []string) string {
	switch name {
	case "concat":
		return strings.Join(args, "")
	case "upper":
		return strings.ToUpper(arg(args, 0))
	case "lower":
		return strings.ToLower(arg(args, 0))
	case "trim":
		return strings.TrimSpace(arg(args, 0))
	case "trimall":
		return strings.ReplaceAll(arg(args, 0), " ", "")
	case "capitalize":
		s := arg(args, 0)
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	case "substring":
		return substringFunc(args)
	case "replace":
		if len(args) < 3 {
			return arg(args, 0)
		}
		return strings.ReplaceAll(args[0], args[1], args[2])
	case "length":
		return strconv.Itoa(len(arg(args, 0)))
	case "if":
		if len(args) < 3 {
			return ""
		}
		if isTruthy(args[0]) {
			return args[1]
		}
		return args[2]
	case "default":
		if arg(args, 0) == "" {
			return arg(args, 1)
		}
		return args[0]
	case "round":
		return roundFunc(args, roundNearest)
	case "floor":
		return roundFunc(args, roundFloor)
	case "ceil":
		return roundFunc(args, roundCeil)
	case "abs":
		n, ok := parseNum(arg(args, 0))
		if !ok {
			return arg(args, 0)
		}
		if n < 0 {
			n = -n
		}
		return formatNum(n)
	default:
		return ""
	}
}

func arg(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "null", "undefined":
		return false
	default:
		return true
	}
}

func substringFunc(args []string) string {
	s := arg(args, 0)
	start, ok1 := parseNum(arg(args, 1))
	if !ok1 {
		return s
	}
	runes := []rune(s)
	si := clampIndex(int(start), len(runes))
	if len(args) < 3 {
		return string(runes[si:])
	}
	end, ok2 := parseNum(args[2])
	if !ok2 {
		return string(runes[si:])
	}
	ei := clampIndex(int(end), len(runes))
	if ei < si {
		return ""
	}
	return string(runes[si:ei])
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

type roundMode int

const (
	roundNearest roundMode = iota
	roundFloor
	roundCeil
)

func roundFunc(args []string, mode roundMode) string {
	n, ok := parseNum(arg(args, 0))
	if !ok {
		return arg(args, 0)
	}

	precision := 0
	hasPrecision := false
	if p, pok := parseNum(arg(args, 1)); pok {
		precision = int(p)
		hasPrecision = true
	}

	scale := math.Pow(10, float64(precision))
	var rounded float64
	switch mode {
	case roundFloor:
		rounded = math.Floor(n*scale) / scale
	case roundCeil:
		rounded = math.Ceil(n*scale) / scale
	default:
		rounded = math.Round(n*scale) / scale
	}

	if !hasPrecision {
		return formatNum(rounded)
	}
	return strconv.FormatFloat(rounded, 'f', precision, 64)
}

func (e *FormulaEvaluator) applyArith(leftStr, op, rightStr string) string {
	left, lok := parseNum(leftStr)
	right, rok := parseNum(rightStr)
	if !lok || !rok {
		return fmt.Sprintf("%s%s%s", leftStr, op, rightStr)
	}
	switch op {
	case "+":
		return formatNum(left + right)
	case "-":
		return formatNum(left - right)
	case "×":
		return formatNum(left * right)
	case "÷":
		if right == 0 {
			return divByZeroSentinel
		}
		return formatNum(left / right)
	default:
		return ""
	}
}

func parseNum(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatNum(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

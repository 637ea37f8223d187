// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormulaEvaluator_PlaceholderThenFunction(t *testing.T) {
	e := NewFormulaEvaluator()
	object := map[string]interface{}{"user": map[string]interface{}{"name": "ada lovelace"}}

	result, num, err := e.Evaluate("upper({{user.name}})", object, nil)
	require.NoError(t, err)
	assert.Equal(t, "ADA LOVELACE", result)
	assert.Nil(t, num)
}

func TestFormulaEvaluator_ArithmeticPrecedence(t *testing.T) {
	e := NewFormulaEvaluator()
	result, num, err := e.Evaluate("2+3×4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "14", result)
	require.NotNil(t, num)
	assert.Equal(t, 14.0, *num)
}

func TestFormulaEvaluator_DivisionByZeroSentinel(t *testing.T) {
	e := NewFormulaEvaluator()
	result, num, err := e.Evaluate("10÷0", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, divByZeroSentinel, result)
	assert.Nil(t, num)
}

func TestFormulaEvaluator_NestedFunctionsInnermostFirst(t *testing.T) {
	e := NewFormulaEvaluator()
	result, _, err := e.Evaluate(`upper(trim( concat(  ada ,  lovelace ) ))`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ADALOVELACE", result)
}

func TestFormulaEvaluator_IfDefaultAndRounding(t *testing.T) {
	e := NewFormulaEvaluator()

	r1, _, _ := e.Evaluate(`if(1, yes, no)`, nil, nil)
	assert.Equal(t, "yes", r1)

	r2, _, _ := e.Evaluate(`default(, fallback)`, nil, nil)
	assert.Equal(t, "fallback", r2)

	r3, _, _ := e.Evaluate(`round(2.6)`, nil, nil)
	assert.Equal(t, "3", r3)

	r4, _, _ := e.Evaluate(`floor(2.9)`, nil, nil)
	assert.Equal(t, "2", r4)

	r5, _, _ := e.Evaluate(`ceil(2.1)`, nil, nil)
	assert.Equal(t, "3", r5)

	r6, _, _ := e.Evaluate(`abs(-5)`, nil, nil)
	assert.Equal(t, "5", r6)
}

func TestFormulaEvaluator_RejectsOversizeFormula(t *testing.T) {
	e := NewFormulaEvaluator()
	huge := strings.Repeat("a", MaxFormulaLength+1)
	_, _, err := e.Evaluate(huge, nil, nil)
	assert.Error(t, err)
}

func TestFormulaEvaluator_RejectsOversizeInput(t *testing.T) {
	e := NewFormulaEvaluator()
	huge := strings.Repeat("a", MaxFormulaInputLen+1)
	_, _, err := e.Evaluate("{{x}}", nil, []interface{}{huge})
	assert.Error(t, err)
}

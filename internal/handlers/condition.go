package handlers

import (
	"context"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"golang.org/x/sync/errgroup"
)

// EvaluateCondition implements §4.4.3: each part's two sides are
// expanded and deserialized, compared with its operator, and folded
// into a running boolean using the previous part's NextPartOperator
// (the last part's NextPartOperator is unused, since no part follows
// it). Ordering operators (> >= < <=) return false whenever either
// side deserialized to a string; == and != accept any mixed types.
func EvaluateCondition(ctx context.Context, cond flow.Condition, v *variables.Variables) (bool, error) {
	var result *bool
	var prevOp *flow.ConditionCombinator

	for _, part := range cond.Parts {
		g, gctx := errgroup.WithContext(ctx)
		var firstRaw, secondRaw string
		g.Go(func() error {
			expanded, err := variables.ExpandText(gctx, part.FirstValue, v)
			firstRaw = expanded
			return err
		})
		g.Go(func() error {
			expanded, err := variables.ExpandText(gctx, part.SecondValue, v)
			secondRaw = expanded
			return err
		})
		if err := g.Wait(); err != nil {
			return false, err
		}

		first := variables.Deserialize(firstRaw)
		second := variables.Deserialize(secondRaw)

		current := evaluateOperator(part.Operator, first, second)

		if result == nil {
			result = &current
		} else {
			combined := combine(*result, current, prevOp)
			result = &combined
		}
		prevOp = part.NextPartOperator
	}

	if result == nil {
		return false, nil
	}
	return *result, nil
}

func evaluateOperator(op flow.ConditionOperator, first, second any) bool {
	switch op {
	case flow.OpEqual:
		return equalMixed(first, second)
	case flow.OpNotEqual:
		return !equalMixed(first, second)
	}

	firstStr, firstIsString := first.(string)
	secondStr, secondIsString := second.(string)
	if firstIsString || secondIsString {
		return false
	}
	_ = firstStr
	_ = secondStr

	firstNum, firstOK := asFloat(first)
	secondNum, secondOK := asFloat(second)
	if !firstOK || !secondOK {
		return false
	}

	switch op {
	case flow.OpGreaterThan:
		return firstNum > secondNum
	case flow.OpGreaterThanOrEqual:
		return firstNum >= secondNum
	case flow.OpLessThan:
		return firstNum < secondNum
	case flow.OpLessThanOrEqual:
		return firstNum <= secondNum
	default:
		return false
	}
}

// equalMixed compares bool/int64/float64/string values for == / !=,
// treating numerically-equal int64/float64 pairs as equal regardless
// of which concrete type each side deserialized to.
func equalMixed(first, second any) bool {
	if first == second {
		return true
	}
	firstNum, firstOK := asFloat(first)
	secondNum, secondOK := asFloat(second)
	if firstOK && secondOK {
		return firstNum == secondNum
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

func combine(result, current bool, op *flow.ConditionCombinator) bool {
	if op == nil {
		return current
	}
	switch *op {
	case flow.CombinatorAnd:
		return result && current
	case flow.CombinatorOr:
		return result || current
	default:
		return current
	}
}

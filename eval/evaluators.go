package eval

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Evaluator scores a generated answer against the dataset's expected
// answer, returning a value between 0 and 1.
type Evaluator interface {
	Name() string
	Score(expected, generated string) float64
}

// EvaluatorBuilder constructs an evaluator from its config settings
type EvaluatorBuilder func(settings map[string]any) (Evaluator, error)

var evaluatorBuilders = map[string]EvaluatorBuilder{}

// RegisterEvaluator makes an evaluator type available to eval configs.
// Registering the same type twice panics.
func RegisterEvaluator(typeName string, builder EvaluatorBuilder) {
	if _, exists := evaluatorBuilders[typeName]; exists {
		panic(fmt.Sprintf("evaluator type already registered: %s", typeName))
	}
	evaluatorBuilders[typeName] = builder
}

// NewEvaluator builds an evaluator by its registered type name
func NewEvaluator(typeName string, settings map[string]any) (Evaluator, error) {
	builder, ok := evaluatorBuilders[typeName]
	if !ok {
		registered := make([]string, 0, len(evaluatorBuilders))
		for name := range evaluatorBuilders {
			registered = append(registered, name)
		}
		sort.Strings(registered)
		return nil, fmt.Errorf("unknown evaluator type %q, registered types: %s",
			typeName, strings.Join(registered, ", "))
	}
	return builder(settings)
}

func init() {
	RegisterEvaluator("exact_match", func(settings map[string]any) (Evaluator, error) {
		return exactMatch{}, nil
	})
	RegisterEvaluator("token_f1", func(settings map[string]any) (Evaluator, error) {
		return tokenF1{}, nil
	})
}

// normalize lowercases, strips punctuation, and collapses whitespace so
// cosmetic differences do not fail a match.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type exactMatch struct{}

func (exactMatch) Name() string { return "exact_match" }

func (exactMatch) Score(expected, generated string) float64 {
	if normalize(expected) == normalize(generated) {
		return 1
	}
	return 0
}

type tokenF1 struct{}

func (tokenF1) Name() string { return "token_f1" }

// Score computes token-level F1 between the normalized answers
func (tokenF1) Score(expected, generated string) float64 {
	expTokens := strings.Fields(normalize(expected))
	genTokens := strings.Fields(normalize(generated))
	if len(expTokens) == 0 || len(genTokens) == 0 {
		if len(expTokens) == 0 && len(genTokens) == 0 {
			return 1
		}
		return 0
	}

	expCounts := make(map[string]int)
	for _, tok := range expTokens {
		expCounts[tok]++
	}

	common := 0
	for _, tok := range genTokens {
		if expCounts[tok] > 0 {
			expCounts[tok]--
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(genTokens))
	recall := float64(common) / float64(len(expTokens))
	return 2 * precision * recall / (precision + recall)
}

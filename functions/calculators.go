// Package functions contains the builtin function types that can be named in
// the `functions` and `workflow` config sections.
package functions

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiqtoolkit/aiq"
)

var numberPattern = regexp.MustCompile(`\d+`)

// extractNumbers pulls all integers out of free-form text, which is how the
// calculator tools accept agent input.
func extractNumbers(text string) []int {
	var numbers []int
	for _, match := range numberPattern.FindAllString(text, -1) {
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	return numbers
}

// validateNumberCount returns a user-facing complaint when the input does not
// carry exactly the expected number count, or "" when it does.
func validateNumberCount(numbers []int, expected int, action string) string {
	if len(numbers) < expected {
		return fmt.Sprintf("Provide at least %d numbers to %s.", expected, action)
	}
	if len(numbers) > expected {
		return fmt.Sprintf("This tool only supports %s between %d numbers.", action, expected)
	}
	return ""
}

func init() {
	aiq.Register_Function("calculator_multiply", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn(
			"calculator_multiply",
			"This is a mathematical tool used to multiply two numbers together. "+
				"It takes 2 numbers as an input and computes their numeric product as the output.",
			multiply,
		), nil
	})

	aiq.Register_Function("calculator_divide", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn(
			"calculator_divide",
			"This is a mathematical tool used to divide one number by another. "+
				"It takes 2 numbers as an input and computes their numeric quotient as the output.",
			divide,
		), nil
	})

	aiq.Register_Function("calculator_subtract", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn(
			"calculator_subtract",
			"This is a mathematical tool used to subtract one number from another. "+
				"It takes 2 numbers as an input and computes their numeric difference as the output.",
			subtract,
		), nil
	})

	aiq.Register_Function("calculator_inequality", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn(
			"calculator_inequality",
			"This is a mathematical tool used to perform an inequality comparison between two numbers. "+
				"It takes two numbers as an input and determines if one is greater or are equal.",
			inequality,
		), nil
	})
}

func multiply(ctx context.Context, text string) (string, error) {
	numbers := extractNumbers(text)
	if msg := validateNumberCount(numbers, 2, "multiply"); msg != "" {
		return msg, nil
	}
	a, b := numbers[0], numbers[1]
	return fmt.Sprintf("The product of %d * %d is %d", a, b, a*b), nil
}

func divide(ctx context.Context, text string) (string, error) {
	numbers := extractNumbers(text)
	if msg := validateNumberCount(numbers, 2, "divide"); msg != "" {
		return msg, nil
	}
	a, b := numbers[0], numbers[1]
	if b == 0 {
		return fmt.Sprintf("Cannot divide %d by zero.", a), nil
	}
	quotient := strconv.FormatFloat(float64(a)/float64(b), 'f', -1, 64)
	// Evenly divisible inputs still read as a float, e.g. "8 / 2 is 4.0".
	if !strings.Contains(quotient, ".") {
		quotient += ".0"
	}
	return fmt.Sprintf("The result of %d / %d is %s", a, b, quotient), nil
}

func subtract(ctx context.Context, text string) (string, error) {
	numbers := extractNumbers(text)
	if msg := validateNumberCount(numbers, 2, "subtract"); msg != "" {
		return msg, nil
	}
	a, b := numbers[0], numbers[1]
	return fmt.Sprintf("The result of %d - %d is %d", a, b, a-b), nil
}

func inequality(ctx context.Context, text string) (string, error) {
	numbers := extractNumbers(text)
	if msg := validateNumberCount(numbers, 2, "compare"); msg != "" {
		return msg, nil
	}
	a, b := numbers[0], numbers[1]
	switch {
	case a > b:
		return fmt.Sprintf("First number %d is greater than the second number %d", a, b), nil
	case a < b:
		return fmt.Sprintf("First number %d is less than the second number %d", a, b), nil
	default:
		return fmt.Sprintf("First number %d is equal to the second number %d", a, b), nil
	}
}

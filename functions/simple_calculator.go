package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiqtoolkit/aiq"
)

// simple_calculator is a composite workflow function: it fetches the current
// time, then runs all four calculator tools over the same input and combines
// their answers. The datetime call is bracketed with CUSTOM_START/CUSTOM_END
// steps so observers can see the sub-tool boundary.
func init() {
	aiq.Register_Function("simple_calculator", buildSimpleCalculator)
}

func buildSimpleCalculator(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
	multiplyTool, err := b.Get_Function("calculator_multiply")
	if err != nil {
		return nil, fmt.Errorf("simple_calculator: %w", err)
	}
	divideTool, err := b.Get_Function("calculator_divide")
	if err != nil {
		return nil, fmt.Errorf("simple_calculator: %w", err)
	}
	subtractTool, err := b.Get_Function("calculator_subtract")
	if err != nil {
		return nil, fmt.Errorf("simple_calculator: %w", err)
	}
	inequalityTool, err := b.Get_Function("calculator_inequality")
	if err != nil {
		return nil, fmt.Errorf("simple_calculator: %w", err)
	}
	datetimeTool, err := b.Get_Function("current_datetime")
	if err != nil {
		return nil, fmt.Errorf("simple_calculator: %w", err)
	}

	run := func(ctx context.Context, inputMessage string) (string, error) {
		steps := aiq.StepManagerFrom(ctx)

		uid := steps.Start(aiq.StepCustomStart, "datetime", inputMessage)
		currentTime, err := datetimeTool.Invoke(ctx, inputMessage)
		if err != nil {
			return "", fmt.Errorf("datetime tool failed: %w", err)
		}
		steps.End(uid, aiq.StepCustomEnd, "datetime", currentTime)

		var response strings.Builder
		response.WriteString(fmt.Sprintf("Current time: %s\n\n", currentTime))

		if len(extractNumbers(inputMessage)) < 2 {
			response.WriteString("Error: Please provide at least 2 numbers for calculation.")
			return response.String(), nil
		}

		multiplyResult, err := multiplyTool.Invoke(ctx, inputMessage)
		if err != nil {
			return "", err
		}
		divideResult, err := divideTool.Invoke(ctx, inputMessage)
		if err != nil {
			return "", err
		}
		subtractResult, err := subtractTool.Invoke(ctx, inputMessage)
		if err != nil {
			return "", err
		}
		inequalityResult, err := inequalityTool.Invoke(ctx, inputMessage)
		if err != nil {
			return "", err
		}

		response.WriteString("Calculation Results:\n")
		response.WriteString(multiplyResult + "\n")
		response.WriteString(divideResult + "\n")
		response.WriteString(subtractResult + "\n")
		response.WriteString(inequalityResult + "\n")
		return response.String(), nil
	}

	return aiq.From_Fn(
		"simple_calculator",
		"A calculator that performs multiple mathematical operations on two numbers. "+
			"It first gets the current time and then performs multiplication, division, "+
			"subtraction, and inequality comparison on the provided numbers.",
		run,
	), nil
}

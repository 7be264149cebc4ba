package functions

import (
	"context"
	"testing"
)

func TestExtractNumbers(t *testing.T) {
	numbers := extractNumbers("multiply 4 and 12 together")
	if len(numbers) != 2 || numbers[0] != 4 || numbers[1] != 12 {
		t.Errorf("Expected [4 12], got %v", numbers)
	}

	if extractNumbers("no digits here") != nil {
		t.Error("Expected nil for text without numbers")
	}
}

func TestMultiply(t *testing.T) {
	out, err := multiply(context.Background(), "what is 2 times 3?")
	if err != nil {
		t.Fatalf("multiply failed: %v", err)
	}
	if out != "The product of 2 * 3 is 6" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestMultiply_TooFewNumbers(t *testing.T) {
	out, err := multiply(context.Background(), "just 5")
	if err != nil {
		t.Fatalf("multiply failed: %v", err)
	}
	if out != "Provide at least 2 numbers to multiply." {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestMultiply_TooManyNumbers(t *testing.T) {
	out, err := multiply(context.Background(), "1 2 3")
	if err != nil {
		t.Fatalf("multiply failed: %v", err)
	}
	if out != "This tool only supports multiply between 2 numbers." {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestDivide(t *testing.T) {
	out, err := divide(context.Background(), "divide 7 by 2")
	if err != nil {
		t.Fatalf("divide failed: %v", err)
	}
	if out != "The result of 7 / 2 is 3.5" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestDivide_WholeQuotientKeepsDecimal(t *testing.T) {
	out, err := divide(context.Background(), "divide 8 by 2")
	if err != nil {
		t.Fatalf("divide failed: %v", err)
	}
	if out != "The result of 8 / 2 is 4.0" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestDivide_ByZero(t *testing.T) {
	out, err := divide(context.Background(), "divide 9 by 0")
	if err != nil {
		t.Fatalf("divide failed: %v", err)
	}
	if out != "Cannot divide 9 by zero." {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestSubtract(t *testing.T) {
	out, err := subtract(context.Background(), "10 minus 4")
	if err != nil {
		t.Fatalf("subtract failed: %v", err)
	}
	if out != "The result of 10 - 4 is 6" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestInequality(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"compare 8 and 3", "First number 8 is greater than the second number 3"},
		{"compare 2 and 9", "First number 2 is less than the second number 9"},
		{"compare 5 and 5", "First number 5 is equal to the second number 5"},
	}
	for _, tc := range cases {
		out, err := inequality(context.Background(), tc.input)
		if err != nil {
			t.Fatalf("inequality failed: %v", err)
		}
		if out != tc.expected {
			t.Errorf("For %q expected %q, got %q", tc.input, tc.expected, out)
		}
	}
}

func TestInequality_Validation(t *testing.T) {
	out, err := inequality(context.Background(), "only 1")
	if err != nil {
		t.Fatalf("inequality failed: %v", err)
	}
	if out != "Provide at least 2 numbers to compare." {
		t.Errorf("Unexpected output: %q", out)
	}
}

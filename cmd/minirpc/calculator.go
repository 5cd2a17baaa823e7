package main

import (
	"errors"
)

// Calculator is the capability served by the demo provider.
type Calculator struct{}

func (Calculator) Add(a, b int) int {
	return a + b
}

func (Calculator) Subtract(a, b int) int {
	return a - b
}

func (Calculator) Multiply(a, b int) int {
	return a * b
}

func (Calculator) Divide(a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

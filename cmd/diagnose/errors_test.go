package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeFor_InvocationErrorIsTwo(t *testing.T) {
	err := newInvocationError(errors.New("missing api key"))
	if got := exitCodeFor(err); got != 2 {
		t.Fatalf("exitCodeFor(invocation error) = %d, want 2", got)
	}
}

func TestExitCodeFor_WrappedInvocationErrorIsTwo(t *testing.T) {
	err := fmt.Errorf("run: %w", newInvocationError(errors.New("bad provider")))
	if got := exitCodeFor(err); got != 2 {
		t.Fatalf("exitCodeFor(wrapped invocation error) = %d, want 2", got)
	}
}

func TestExitCodeFor_OtherErrorIsOne(t *testing.T) {
	if got := exitCodeFor(errors.New("validation failed")); got != 1 {
		t.Fatalf("exitCodeFor(plain error) = %d, want 1", got)
	}
}

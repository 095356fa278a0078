package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(CodeNoPendingRequest, "no pending trade request")
	if !strings.Contains(err.Error(), "TRADE_NO_PENDING_REQUEST") {
		t.Fatalf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "no pending trade request") {
		t.Fatalf("expected message, got %q", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeExchangeInternal, "withdraw failed", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be discoverable via errors.Is")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected cause in message, got %q", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "domain error", err: New(CodeAlreadyInTrade, "already in trade"), want: CodeAlreadyInTrade},
		{name: "wrapped domain error", err: fmt.Errorf("outer: %w", New(CodeWrongState, "wrong state")), want: CodeWrongState},
		{name: "plain error", err: stderrors.New("plain"), want: CodeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := GetCode(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeCountdownNotComplete, "countdown not complete")
	if !IsCode(err, CodeCountdownNotComplete) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(err, CodeWrongState) {
		t.Fatal("expected IsCode to reject other codes")
	}
}

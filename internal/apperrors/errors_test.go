package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeRoundTrip(t *testing.T) {
	for code, sentinel := range byCode {
		err := fmt.Errorf("wrapped: %w", New(sentinel, "msg"))
		if got := Code(err); got != code {
			t.Errorf("Code(%v) = %s, want %s", sentinel, got, code)
		}
		back := FromCode(code, "remote said no")
		if !errors.Is(back, sentinel) || back.Error() != "remote said no" {
			t.Errorf("FromCode(%s) = %v", code, back)
		}
	}
	if Code(errors.New("boom")) != "internal" {
		t.Error("unknown errors should be internal")
	}
	if err := FromCode("rate_limited", ""); err.Error() != "rate_limited" {
		t.Errorf("unknown code = %v", err)
	}
}

func TestCustomCodeWins(t *testing.T) {
	err := New(ErrValidation, "bad").WithCode("bad_embedding")
	if Code(err) != "bad_embedding" {
		t.Errorf("code = %s", Code(err))
	}
	if !Is(err, ErrNotFound, ErrValidation) {
		t.Error("Is should match any of the targets")
	}
}

package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMap,
				Kind:   KindScript,
				Func:   2,
				Detail: "TypeError: x is not defined",
			},
			contains: []string{"[map]", "script_error", "function 2", "TypeError: x is not defined"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseReduce,
				Kind:  KindArity,
				Func:  -1,
			},
			contains: []string{"[reduce]", "arity_mismatch"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCompile,
				Kind:   KindCompile,
				Func:   0,
				Detail: "function source rejected",
				Cause:  errors.New("SyntaxError: unexpected token"),
			},
			contains: []string{"[compile]", "compile_error", "function 0", "caused by", "SyntaxError"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_NoFunctionSlot(t *testing.T) {
	err := Terminated(PhaseMap)
	msg := err.Error()
	if containsSubstring(msg, "at function") {
		t.Errorf("error without a function slot should not mention one, got %q", msg)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseMap,
		Kind:  KindParse,
		Func:  -1,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	// Test with errors.Unwrap
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseMap,
		Kind:  KindScript,
		Func:  1,
	}

	// Same phase and kind
	if !err.Is(&Error{Phase: PhaseMap, Kind: KindScript}) {
		t.Error("Is should match same phase and kind")
	}

	// Different phase
	if err.Is(&Error{Phase: PhaseReduce, Kind: KindScript}) {
		t.Error("Is should not match different phase")
	}

	// Different kind
	if err.Is(&Error{Phase: PhaseMap, Kind: KindEmitOverflow}) {
		t.Error("Is should not match different kind")
	}

	// Test with errors.Is
	target := &Error{Phase: PhaseMap, Kind: KindScript}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", EmitOverflow(0, 100), KindEmitOverflow},
		{"wrapped", Wrap(PhaseMap, KindParse, errors.New("bad json"), "parse doc"), KindParse},
		{"foreign", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseReduce, KindScript).
		Func(3).
		Value("undefined").
		Cause(cause).
		Detail("reduce function returned %s", "no value").
		Build()

	if err.Phase != PhaseReduce {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseReduce)
	}
	if err.Kind != KindScript {
		t.Errorf("Kind = %v, want %v", err.Kind, KindScript)
	}
	if err.Func != 3 {
		t.Errorf("Func = %v, want 3", err.Func)
	}
	if err.Value != "undefined" {
		t.Errorf("Value = %v, want 'undefined'", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "reduce function returned no value" {
		t.Errorf("Detail = %v, want 'reduce function returned no value'", err.Detail)
	}
}

func TestBuilder_DefaultFunc(t *testing.T) {
	err := New(PhaseMap, KindParse).Build()
	if err.Func != -1 {
		t.Errorf("Func = %v, want -1 for errors not tied to a function", err.Func)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Compile", func(t *testing.T) {
		cause := errors.New("SyntaxError: unexpected end of input at view:1:20")
		err := Compile(1, cause)
		if err.Kind != KindCompile {
			t.Errorf("Kind = %v, want %v", err.Kind, KindCompile)
		}
		if err.Func != 1 {
			t.Errorf("Func = %v, want 1", err.Func)
		}
		if !containsSubstring(err.Error(), "1:20") {
			t.Errorf("Error = %v, should carry the source position", err.Error())
		}
	})

	t.Run("NotAFunction", func(t *testing.T) {
		err := NotAFunction(0)
		if err.Kind != KindCompile {
			t.Errorf("Kind = %v, want %v", err.Kind, KindCompile)
		}
		if !containsSubstring(err.Detail, "function") {
			t.Errorf("Detail = %v, should explain the value is not a function", err.Detail)
		}
	})

	t.Run("Parse", func(t *testing.T) {
		err := Parse(PhaseMap, "document", errors.New("unexpected token"))
		if err.Kind != KindParse {
			t.Errorf("Kind = %v, want %v", err.Kind, KindParse)
		}
		if !containsSubstring(err.Detail, "document") {
			t.Errorf("Detail = %v, should name the input", err.Detail)
		}
	})

	t.Run("EmitOverflow", func(t *testing.T) {
		err := EmitOverflow(2, 1048600)
		if err.Kind != KindEmitOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindEmitOverflow)
		}
		if err.Detail != "too much data emitted: 1048600 bytes" {
			t.Errorf("Detail = %q, want the historical wording", err.Detail)
		}
		if err.Value != 1048600 {
			t.Errorf("Value = %v, want 1048600", err.Value)
		}
	})

	t.Run("Script", func(t *testing.T) {
		err := Script(PhaseMap, 0, "Error: boom")
		if err.Kind != KindScript {
			t.Errorf("Kind = %v, want %v", err.Kind, KindScript)
		}
	})

	t.Run("Arity", func(t *testing.T) {
		err := Arity(PhaseReduce, 3, 2)
		if err.Kind != KindArity {
			t.Errorf("Kind = %v, want %v", err.Kind, KindArity)
		}
		if !containsSubstring(err.Detail, "3") || !containsSubstring(err.Detail, "2") {
			t.Errorf("Detail = %v, should carry both lengths", err.Detail)
		}
	})

	t.Run("Terminated", func(t *testing.T) {
		err := Terminated(PhaseMap)
		if err.Kind != KindTerminated {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTerminated)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := InvalidInput(PhaseMap, "empty document")
		if err.Kind != KindInvalidInput {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
		}
	})

	t.Run("InvalidState", func(t *testing.T) {
		err := InvalidState(PhaseTeardown, "context already closed")
		if err.Kind != KindInvalidState {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidState)
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized(PhaseInit, "engine")
		if err.Kind != KindNotInitialized {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotInitialized)
		}
		if !containsSubstring(err.Detail, "engine") {
			t.Errorf("Detail = %v, should name the component", err.Detail)
		}
	})

	t.Run("BadIndex", func(t *testing.T) {
		err := BadIndex(PhaseReduce, 5, 2)
		if err.Kind != KindInvalidInput {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
		}
		if err.Value != 5 {
			t.Errorf("Value = %v, want 5", err.Value)
		}
	})
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && containsSubstringHelper(s, substr)))
}

func containsSubstringHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

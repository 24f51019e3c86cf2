// Package errors provides structured error types for the view-engine library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the function slot involved,
// an offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMap, errors.KindScript).
//		Func(2).
//		Detail("TypeError: doc.tags is not iterable").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Compile(0, cause)
//	err := errors.EmitOverflow(1, 1048612)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

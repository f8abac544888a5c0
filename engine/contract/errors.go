package contract

import "errors"

var (
	// ErrNotApplicable is a handler's fall-through signal, not a failure.
	ErrNotApplicable = errors.New("handler not applicable")

	ErrStoreUnavailable    = errors.New("durable store unavailable")
	ErrLLMInvoke           = errors.New("llm call failed")
	ErrUnparsableLLMOutput = errors.New("llm output violates schema")
	ErrBudgetExhausted     = errors.New("budget exhausted")
	ErrValidation          = errors.New("validation failed")
)

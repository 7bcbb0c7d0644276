package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session does not exist (or was deleted).
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotRunning is returned for ticks and selections outside the running phase.
	ErrSessionNotRunning = errors.New("quiz session is not running")
	// ErrSessionNotFinished is returned when the result card is requested mid-quiz.
	ErrSessionNotFinished = errors.New("quiz session is not finished")
	// ErrStaleQuestion is returned when a selection targets a question that is already resolved.
	ErrStaleQuestion = errors.New("question already resolved")
	// ErrChoiceOutOfRange indicates a selection outside the question's choices.
	ErrChoiceOutOfRange = errors.New("choice out of range")
	// ErrBrandNotFound indicates an unknown brand deployment.
	ErrBrandNotFound = errors.New("brand not found")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrInvalidItem indicates a quiz item with an invalid shape.
	ErrInvalidItem = errors.New("invalid quiz item")
	// ErrNetworkUnavailable wraps any avatar or image fetch failure. It is always recoverable.
	ErrNetworkUnavailable = errors.New("network resource unavailable")
	// ErrExportFailed indicates the card snapshot could not be produced.
	ErrExportFailed = errors.New("could not generate image")
)
